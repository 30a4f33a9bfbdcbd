package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/KaiyuWei/chat-box/internal/domain"
)

const (
	stateBucket = "chatbox"

	selectionKey = "active_conversation"
	// Copia de render de la conversación activa: se muestra al arrancar
	// mientras llega el primer listado del backend.
	cachedConversationKey = "current_conversation"
)

// CachedConversation es el sobre serializado de la caché de render, con el
// momento de la última escritura.
type CachedConversation struct {
	Conversation domain.Conversation `json:"conversation"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// SelectionStore persiste la selección activa (y la caché heredada) en un
// archivo bbolt. Toda falla se absorbe localmente: se loggea y se degrada a
// "sin selección"; la persistencia es best-effort, nunca necesaria para la
// corrección del controlador.
type SelectionStore struct {
	path string
	log  *zap.Logger
}

// DefaultStatePath devuelve ~/.chat-box/state.bolt, o una ruta relativa si no
// hay home disponible.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".chat-box", "state.bolt")
	}
	return filepath.Join(home, ".chat-box", "state.bolt")
}

func NewSelectionStore(path string, log *zap.Logger) *SelectionStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SelectionStore{path: path, log: log}
}

// Load lee y decodifica la selección guardada. Devuelve false ante clave
// ausente, JSON corrupto o almacenamiento inaccesible; nunca propaga el error.
func (s *SelectionStore) Load() (domain.ConversationID, bool) {
	raw, ok := s.get(selectionKey)
	if !ok {
		return domain.ConversationID{}, false
	}
	var id domain.ConversationID
	if err := json.Unmarshal(raw, &id); err != nil {
		s.log.Warn("discarding corrupt stored selection", zap.Error(err))
		return domain.ConversationID{}, false
	}
	if id.IsZero() {
		return domain.ConversationID{}, false
	}
	return id, true
}

// Save codifica y escribe la selección. Ante falla loggea y deja el estado
// previo intacto. Guardar el valor cero equivale a Clear.
func (s *SelectionStore) Save(id domain.ConversationID) {
	if id.IsZero() {
		s.Clear()
		return
	}
	enc, err := json.Marshal(id)
	if err != nil {
		s.log.Warn("encode selection failed", zap.Error(err))
		return
	}
	s.put(selectionKey, enc)
}

// Clear elimina la selección guardada. Es idempotente.
func (s *SelectionStore) Clear() {
	s.delete(selectionKey)
}

// LoadCachedConversation lee la copia de render de la conversación activa. Un
// cuerpo ausente o ilegible se trata como "sin caché utilizable".
func (s *SelectionStore) LoadCachedConversation() (domain.Conversation, bool) {
	raw, ok := s.get(cachedConversationKey)
	if !ok {
		return domain.Conversation{}, false
	}
	var cached CachedConversation
	if err := json.Unmarshal(raw, &cached); err != nil {
		s.log.Warn("discarding corrupt cached conversation", zap.Error(err))
		return domain.Conversation{}, false
	}
	if cached.Conversation.ID.IsZero() {
		return domain.Conversation{}, false
	}
	return cached.Conversation, true
}

// SaveCachedConversation escribe la copia de render con sello de
// actualización fresco.
func (s *SelectionStore) SaveCachedConversation(conv domain.Conversation) {
	enc, err := json.Marshal(CachedConversation{Conversation: conv, UpdatedAt: time.Now().UTC()})
	if err != nil {
		s.log.Warn("encode cached conversation failed", zap.Error(err))
		return
	}
	s.put(cachedConversationKey, enc)
}

// ClearCachedConversation elimina la copia de render. Idempotente.
func (s *SelectionStore) ClearCachedConversation() {
	s.delete(cachedConversationKey)
}

func (s *SelectionStore) open() (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, err
	}
	return bolt.Open(s.path, 0o600, &bolt.Options{Timeout: time.Second})
}

func (s *SelectionStore) get(key string) ([]byte, bool) {
	db, err := s.open()
	if err != nil {
		s.log.Warn("open state store failed", zap.String("path", s.path), zap.Error(err))
		return nil, false
	}
	defer func() { _ = db.Close() }()

	var out []byte
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(stateBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("read state store failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return out, out != nil
}

func (s *SelectionStore) put(key string, value []byte) {
	db, err := s.open()
	if err != nil {
		s.log.Warn("open state store failed", zap.String("path", s.path), zap.Error(err))
		return
	}
	defer func() { _ = db.Close() }()

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(stateBucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	if err != nil {
		s.log.Warn("write state store failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *SelectionStore) delete(key string) {
	db, err := s.open()
	if err != nil {
		s.log.Warn("open state store failed", zap.String("path", s.path), zap.Error(err))
		return
	}
	defer func() { _ = db.Close() }()

	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(stateBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		s.log.Warn("delete from state store failed", zap.String("key", key), zap.Error(err))
	}
}
