package mq

import "errors"

var (
	// ErrNoChannel — AMQP канал недоступен (идёт переподключение).
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrClosed — соединение закрыто.
	ErrClosed = errors.New("amqp connection closed")

	// ErrUnexpectedMessage — тип сообщения не совпадает с ожидаемым.
	ErrUnexpectedMessage = errors.New("unexpected message type")
)
