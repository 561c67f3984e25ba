// Package graph хранит вершины и рёбра workflow.
//
// Graph реализует node.Graph (для вершин) и dataflow.Graph (для движка
// разрешения входов). Рёбра хранятся в порядке добавления — этот порядок
// определяет порядок значений на входах с несколькими подключениями.
//
// AddConnection проверяет порты, совместимость типов и отсутствие
// циклов по рёбрам данных. Рёбра trigger задают порядок выполнения
// и в проверке циклов не участвуют.
package graph
