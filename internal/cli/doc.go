// Package cli реализует инструмент командной строки craftflow.
//
// # Обзор
//
// Команды делятся на две группы:
//   - удалённые (workflow, execution, context) работают с API по HTTP;
//   - локальные (local) собирают граф из файла и выполняют его в процессе,
//     без базы данных и брокера.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API craftflow. Инкапсулирует запросы, разбор ответов
// (DataResponse, ListResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	execs, err := client.ListExecutions(cli.ListExecutionsOpts{Version: "v1"})
//
// ## Output
//
// Форматирование вывода: таблицы (text/tabwriter) по умолчанию,
// JSON с флагом --json. Данные выводятся в stdout, сообщения в stderr:
//
//	craftflow execution list --json | jq .
//
// ## Commands
//
//   - workflow: import, graph, types
//   - execution: list, start, show, nodes, step
//   - context: show, set
//   - local: run, validate, dot
//
// Каждая группа создаётся фабричной функцией (NewWorkflowCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после разбора PersistentFlags.
package cli
