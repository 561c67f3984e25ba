// Package api — HTTP API craftflow.
//
// Структура:
//   - handler.go           — Handler и его зависимости
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — logging, recovery
//   - response.go          — JSON-ответы и отображение ошибок
//   - dto.go               — запросы и ответы
//   - node_handler.go      — вершины и их типы
//   - edge_handler.go      — рёбра
//   - context_handler.go   — долговременные состояния вершин
//   - execution_handler.go — выполнения и шаги
package api
