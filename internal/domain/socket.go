package domain

// Socket — тип данных порта.
type Socket string

// Известные типы портов.
const (
	SocketTrigger Socket = "Trigger"
	SocketString  Socket = "String"
	SocketNumber  Socket = "Number"
	SocketBoolean Socket = "Boolean"
	SocketObject  Socket = "Object"
	SocketArray   Socket = "Array"
	SocketAny     Socket = "Any"
)

// IsCompatibleWith проверяет, можно ли соединить выход s со входом target.
//
// Trigger соединяется только с Trigger. Any совместим с любым портом данных.
func (s Socket) IsCompatibleWith(target Socket) bool {
	if s == SocketTrigger || target == SocketTrigger {
		return s == target
	}
	if s == SocketAny || target == SocketAny {
		return true
	}
	return s == target
}

// ParseSocket возвращает Socket по имени; неизвестные имена считаются Any.
func ParseSocket(name string) Socket {
	switch Socket(name) {
	case SocketTrigger, SocketString, SocketNumber, SocketBoolean,
		SocketObject, SocketArray, SocketAny:
		return Socket(name)
	default:
		return SocketAny
	}
}
