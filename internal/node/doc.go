// Package node — обёртка вершины графа над актором её автомата.
//
// Node связывает вершину (domain.Vertex) с запущенным актором,
// разрешает входы через dataflow.Engine, сохраняет состояние и
// передаёт управление следующим вершинам.
//
// Два режима:
//   - интерактивный (Deps.Headless == false) — завершение передаётся
//     через callback forward, выходы пересчитываются вниз по графу
//     (UpdateAncestors), память автомата сохраняется в Context с debounce;
//   - headless — каждая следующая вершина запускается отдельным шагом
//     выполнения через Persistence.TriggerWorkflowExecutionStep.
//
// Режим выполнения (Config.Execution != nil) сохраняет полный снимок
// автомата в ExecutionNode при каждом переходе.
package node
