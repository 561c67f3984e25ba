// Package orchestrator запускает и завершает выполнения workflow.
//
// StartExecution создаёт WorkflowExecution и по записи ExecutionNode на
// каждую вершину версии, затем отправляет шаги точкам входа. Дальше
// управление передают сами вершины (TriggerSuccessors), а runner после
// каждого шага вызывает Finalize:
//   - управляющая вершина в error — FAILED
//   - все управляющие вершины complete — SUCCEEDED
//
// Управляющие вершины — точки входа и всё, что достижимо из них по рёбрам trigger.
package orchestrator
