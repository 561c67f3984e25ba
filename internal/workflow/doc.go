// Package workflow собирает живой граф вершин.
//
// Источники графа:
//   - записи хранилища (вершины, рёбра, контексты, вершины выполнения) — Load
//   - файлы описания workflow в YAML или DOT — ParseYAML, ParseDOT, LoadFile
//
// Build создаёт вершины через реестр типов и проверяет рёбра графом.
// ExportDOT выводит граф в формате Graphviz.
package workflow
