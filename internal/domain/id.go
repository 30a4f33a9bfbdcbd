package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// temporaryIDPrefix marca los IDs generados por el cliente. El backend asigna
// IDs numéricos, así que un ID con este prefijo nunca colisiona con uno real.
const temporaryIDPrefix = "temp-"

// ErrInvalidConversationID se devuelve al decodificar un ID almacenado que no
// es ni un número del backend ni un ID temporal válido.
var ErrInvalidConversationID = fmt.Errorf("invalid conversation id")

// ConversationID es un sum type sobre las dos familias de identidad: IDs
// persistidos (asignados por el backend, estables) e IDs temporales (generados
// por el cliente, basados en tiempo). El valor cero significa "sin selección".
type ConversationID struct {
	persisted int64
	temporary string
}

// PersistedID construye un ID asignado por el backend.
func PersistedID(id int64) ConversationID {
	return ConversationID{persisted: id}
}

// NewTemporaryID genera un ID temporal nuevo basado en el reloj.
func NewTemporaryID(now time.Time) ConversationID {
	return ConversationID{temporary: fmt.Sprintf("%s%d", temporaryIDPrefix, now.UnixNano())}
}

// IsZero indica "sin conversación seleccionada".
func (id ConversationID) IsZero() bool {
	return id.persisted == 0 && id.temporary == ""
}

func (id ConversationID) IsTemporary() bool {
	return id.temporary != ""
}

func (id ConversationID) IsPersisted() bool {
	return id.persisted != 0
}

// Persisted devuelve el valor numérico del backend, si lo hay.
func (id ConversationID) Persisted() (int64, bool) {
	return id.persisted, id.persisted != 0
}

func (id ConversationID) String() string {
	switch {
	case id.temporary != "":
		return id.temporary
	case id.persisted != 0:
		return fmt.Sprintf("%d", id.persisted)
	default:
		return ""
	}
}

// MarshalJSON codifica como número (persistido), string (temporal) o null,
// que es el formato que el adaptador de persistencia guarda en disco.
func (id ConversationID) MarshalJSON() ([]byte, error) {
	switch {
	case id.temporary != "":
		return json.Marshal(id.temporary)
	case id.persisted != 0:
		return json.Marshal(id.persisted)
	default:
		return []byte("null"), nil
	}
}

func (id *ConversationID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*id = ConversationID{}
		return nil
	}

	var num int64
	if err := json.Unmarshal(data, &num); err == nil {
		if num <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidConversationID, num)
		}
		*id = ConversationID{persisted: num}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConversationID, trimmed)
	}
	if !strings.HasPrefix(s, temporaryIDPrefix) {
		return fmt.Errorf("%w: %q", ErrInvalidConversationID, s)
	}
	*id = ConversationID{temporary: s}
	return nil
}
