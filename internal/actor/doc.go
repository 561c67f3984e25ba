// Package actor — среда выполнения иерархических конечных автоматов.
//
// Содержит:
//   - machine.go  — определение автомата (Machine, StateNode, Transition)
//   - snapshot.go — сериализуемый снимок и внутренняя память (Memory)
//   - actor.go    — запущенный экземпляр (Start, Send, Subscribe, Snapshot, Stop)
//   - wait.go     — ожидание состояния (WaitFor)
//   - equal.go    — сравнение значений памяти по содержимому
//
// Состояния адресуются путём через точку ("running.fetch"),
// Snapshot.Matches("running") истинно для всех вложенных состояний.
//
// Сервисы (Invoke) запускаются в отдельных горутинах при входе в состояние
// и отменяются при выходе из него. Результат приходит в OnDone/OnError.
package actor
