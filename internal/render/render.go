package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"text/template"
	"text/template/parse"
)

// Scope — данные, доступные шаблону.
type Scope struct {
	// Inputs — разрешённые входы вершины.
	Inputs map[string]any `json:"inputs"`

	// Values — данные типа вершины.
	Values map[string]any `json:"values"`
}

// NewScope создаёт Scope с входами.
func NewScope(inputs map[string]any) *Scope {
	if inputs == nil {
		inputs = make(map[string]any)
	}
	return &Scope{
		Inputs: inputs,
		Values: make(map[string]any),
	}
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если первый аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if v != nil {
				if s, ok := v.(string); ok && s == "" {
					continue
				}
				return v
			}
		}
		return nil
	},

	// fromJSON — парсит JSON строку
	"fromJSON": func(s string) any {
		var result any
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return nil
		}
		return result
	},

	// join — объединяет элементы списка через sep
	"join": func(sep string, items any) string {
		switch v := items.(type) {
		case []string:
			return strings.Join(v, sep)
		case []any:
			parts := make([]string, len(v))
			for i, item := range v {
				parts[i] = fmt.Sprint(item)
			}
			return strings.Join(parts, sep)
		default:
			return fmt.Sprint(items)
		}
	},

	"split":     func(sep, s string) []string { return strings.Split(s, sep) },
	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,
}

func parseTemplate(tmpl string) (*template.Template, error) {
	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}
	return t, nil
}

// Render рендерит строковый шаблон.
//
//	Hello, {{ .Inputs.name }}!
//	{{ range .Inputs.items }}- {{ . }}{{ end }}
func Render(tmpl string, scope *Scope) (string, error) {
	// Проверяем, содержит ли строка шаблонные выражения
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := parseTemplate(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, scope); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// RenderValue рендерит произвольное значение.
// Рекурсивно обрабатывает map и slice.
func RenderValue(value any, scope *Scope) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil

	case string:
		return Render(v, scope)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, scope)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, scope)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	case map[string]string:
		result := make(map[string]string, len(v))
		for key, val := range v {
			rendered, err := Render(val, scope)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	default:
		// Для остальных типов (int, float, bool) возвращаем как есть
		return value, nil
	}
}

// RenderConfig рендерит конфигурацию вершины.
// Это обёртка над RenderValue для map[string]any.
func RenderConfig(config map[string]any, scope *Scope) (map[string]any, error) {
	if config == nil {
		return make(map[string]any), nil
	}

	rendered, err := RenderValue(config, scope)
	if err != nil {
		return nil, err
	}

	result, ok := rendered.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected map, got %T", ErrTemplateRender, rendered)
	}

	return result, nil
}

// Variables возвращает имена входов, на которые ссылается шаблон
// ({{ .Inputs.name }}), в порядке первого появления.
func Variables(tmpl string) ([]string, error) {
	if !strings.Contains(tmpl, "{{") {
		return nil, nil
	}

	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}

	var vars []string
	walk(t.Tree.Root, func(field []string) {
		if len(field) >= 2 && field[0] == "Inputs" && !slices.Contains(vars, field[1]) {
			vars = append(vars, field[1])
		}
	})
	return vars, nil
}

// walk обходит дерево шаблона и вызывает fn для каждого обращения к полю.
func walk(n parse.Node, fn func(field []string)) {
	if n == nil {
		return
	}
	switch x := n.(type) {
	case *parse.ListNode:
		if x == nil {
			return
		}
		for _, c := range x.Nodes {
			walk(c, fn)
		}
	case *parse.ActionNode:
		walk(x.Pipe, fn)
	case *parse.PipeNode:
		if x == nil {
			return
		}
		for _, cmd := range x.Cmds {
			walk(cmd, fn)
		}
	case *parse.CommandNode:
		for _, arg := range x.Args {
			walk(arg, fn)
		}
	case *parse.FieldNode:
		fn(x.Ident)
	case *parse.ChainNode:
		walk(x.Node, fn)
	case *parse.IfNode:
		walkBranch(&x.BranchNode, fn)
	case *parse.RangeNode:
		walkBranch(&x.BranchNode, fn)
	case *parse.WithNode:
		walkBranch(&x.BranchNode, fn)
	}
}

func walkBranch(b *parse.BranchNode, fn func(field []string)) {
	walk(b.Pipe, fn)
	walk(b.List, fn)
	if b.ElseList != nil {
		walk(b.ElseList, fn)
	}
}
