// Package render рендерит Go templates над входами вершин.
//
// Шаблоны обращаются к данным через Scope:
//   - {{ .Inputs.topic }} — разрешённые входы вершины
//   - {{ .Values.name }}  — данные типа вершины из памяти автомата
//
// Variables находит входы, на которые ссылается шаблон; по ним
// PromptTemplate строит свои входные порты.
package render
