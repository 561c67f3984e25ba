// Package dataflow разрешает входы вершин по рёбрам данных.
//
// Engine вытягивает выходы вершин-источников через Source.Data,
// рекурсивно и в глубину, и кэширует их в пределах прохода (pass).
// Проход верхнего уровня начинается с Resolve: кэш очищается, а
// параллельные проходы одного Engine выполняются по очереди.
// Вложенные вызовы (источник разрешает свои входы) находят текущий
// проход в context.Context и переиспользуют его кэш.
//
// Повторный заход в вершину в пределах одной цепочки разрешения
// означает цикл и завершается ErrCycleDetected.
package dataflow
