package config

import (
	"fmt"
	"strings"
)

// ValidationError описывает одно нарушение в конфигурационном документе
type ValidationError struct {
	// Entity - элемент конфигурации, к которому относится нарушение,
	// например `bucket "main"` или `serviceAccessTokens[2]`
	Entity string

	// Field - имя поля документа в том виде, в каком оно записано в YAML
	Field string

	// Message - описание нарушения
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Entity, e.Field, e.Message)
}

// ValidationErrors - полный список нарушений, собранный за один проход
// разрешения конфигурации. Разрешение не останавливается на первой ошибке,
// чтобы оператор мог исправить документ за одну итерацию.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "configuration is invalid"
	}

	messages := make([]string, len(e))
	for i, ve := range e {
		messages[i] = ve.Error()
	}
	return fmt.Sprintf("configuration is invalid: %s", strings.Join(messages, "; "))
}
