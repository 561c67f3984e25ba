package actor

import (
	"encoding/json"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Equal сравнивает два значения памяти по содержимому.
//
// Значения сначала приводятся к JSON-представлению: после восстановления
// из БД числа приходят как float64, а свежие выходы могут быть int.
// Пустые и nil-коллекции считаются равными.
func Equal(a, b any) bool {
	return cmp.Equal(normalize(a), normalize(b), cmpopts.EquateEmpty())
}

func normalize(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	switch t := out.(type) {
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
	case []any:
		if len(t) == 0 {
			return nil
		}
	}
	return out
}
