package runner

import "errors"

// ErrNodeNotInVersion — шаг ссылается на вершину, которой нет в версии.
var ErrNodeNotInVersion = errors.New("workflow node is not part of the execution")
