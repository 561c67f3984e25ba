// Package nodes содержит типы вершин workflow.
//
// Тип вершины (Kind) задаёт автомат, порты и реализации сервисов.
// Набор типов закрыт: вершина создаётся через Registry.Build по
// полю Vertex.Type, общий протокол выполнения реализует пакет node.
//
// Встроенные типы:
//   - Start, Log, HTTPRequest, Delay — управляющие (есть порт trigger)
//   - Text, Number, InputNode — значения, задаваемые контролом или снаружи
//   - PromptTemplate, Transform, ComposeObject, OutputNode — чистые вычисления
package nodes
