// Package runner выполняет шаги выполнений в фоновом режиме.
//
// Шаг — пара (execution_id, workflow_node_id) из очереди steps.ready или
// из опроса зависших шагов. Для шага runner:
//  1. занимает блокировку шага
//  2. пропускает выполнения в терминальном статусе
//  3. собирает граф версии в режиме выполнения (каждая вершина связана
//     со своей записью ExecutionNode)
//  4. вызывает Execute целевой вершины; она сама отправляет шаги преемникам
//  5. вызывает Finalize
//
// Таймаут вершины переводит выполнение в FAILED.
package runner
