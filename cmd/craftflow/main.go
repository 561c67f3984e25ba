// craftflow — инструмент командной строки.
//
// Использование:
//
//	craftflow [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	workflow   Импорт и просмотр графов через API
//	execution  Запуск и просмотр выполнений
//	context    Состояния вершин
//	local      Проверка и выполнение файла workflow без API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/craftflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "craftflow",
		Short:         "craftflow CLI — node-based workflow runtime",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("CRAFTFLOW_API_URL"); v != "" {
		defaultURL = v
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewWorkflowCmd(clientFn, outputFn),
		cli.NewExecutionCmd(clientFn, outputFn),
		cli.NewContextCmd(clientFn, outputFn),
		cli.NewLocalCmd(outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
