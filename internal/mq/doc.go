// Package mq — доставка шагов выполнения через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация execution.step
//   - consumer.go   — потребление с ack/nack
//
// Сообщение execution.step несёт пару (execution_id, workflow_node_id):
// «выполнить вершину в рамках выполнения». Потребитель — runner.
//
// Exchanges:
//   - craftflow.steps — шаги выполнения
//   - craftflow.dlq   — сообщения, которые не удалось обработать
package mq
