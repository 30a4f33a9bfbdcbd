package session

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaiyuWei/chat-box/internal/domain"
)

// State enumera los cuatro estados de la sesión sobre el par
// (activeConversationID, temporaryConversation).
type State int

const (
	// StateLoading: el fetch inicial (o uno posterior a un cierre) sigue
	// pendiente; la UI muestra un indicador de carga.
	StateLoading State = iota
	// StateUnselected: sin conversación activa; la UI muestra la bienvenida.
	StateUnselected
	// StateTemporary: la conversación activa es la temporal local, todavía
	// sin ID del backend.
	StateTemporary
	// StatePersisted: la conversación activa tiene ID asignado por el backend.
	StatePersisted
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnselected:
		return "unselected"
	case StateTemporary:
		return "temporary"
	case StatePersisted:
		return "persisted"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy: ya hay un envío en vuelo. No se encola ni se difiere; el
	// contrato de la UI es un envío pendiente a la vez.
	ErrBusy = errors.New("a send is already in flight")
	// ErrEmptyMessage: texto vacío tras recortar espacios; se rechaza antes
	// de tocar la red.
	ErrEmptyMessage = errors.New("message text is empty")
	// ErrTemporaryPinned: con una conversación temporal abierta no se puede
	// cambiar a otra persistida; hay que cerrarla primero.
	ErrTemporaryPinned = errors.New("close the temporary conversation first")
	// ErrUnknownConversation: el ID no corresponde ni a la temporal ni a
	// ninguna conversación del último listado.
	ErrUnknownConversation = errors.New("conversation not found")
	// ErrNoTemporaryConversation: se pidió cerrar la temporal y no existe.
	ErrNoTemporaryConversation = errors.New("no temporary conversation to close")
)

// BackendDownNotice es el aviso que ve el usuario cuando el fetch inicial
// falla y la sesión degrada a Unselected.
const BackendDownNotice = "The backend server is not reachable yet. " +
	"If you just started it, the model may still be loading; try again in a few minutes."

// SelectionStore es lo que el controlador necesita del adaptador de
// persistencia: la selección activa y la copia de render de la conversación
// activa. Todas las operaciones son fail-soft.
type SelectionStore interface {
	Load() (domain.ConversationID, bool)
	Save(id domain.ConversationID)
	Clear()
	LoadCachedConversation() (domain.Conversation, bool)
	SaveCachedConversation(conv domain.Conversation)
	ClearCachedConversation()
}

// SendRequest es el pedido que la capa de presentación debe ejecutar contra
// la API. ConversationID en cero significa "omitir del request": el backend
// asignará un ID nuevo.
type SendRequest struct {
	Text           string
	ConversationID domain.ConversationID
}

// Controller es la máquina de estados de la sesión. Posee en exclusiva la
// identidad de la conversación activa, la lista de mensajes mostrada, la
// bandera de envío en vuelo y el contador de refresco del sidebar.
//
// El controlador nunca bloquea: cada método es síncrono y se invoca desde un
// único goroutine (el loop de update de la UI). Las llamadas de red ocurren
// afuera y sus resultados reingresan por los métodos Apply*. isProcessing es
// el único mecanismo de exclusión mutua, igual que en la UI original.
type Controller struct {
	store SelectionStore
	log   *zap.Logger
	now   func() time.Time

	state         State
	activeID      domain.ConversationID
	temp          *domain.Conversation
	messages      []domain.Message
	conversations []domain.Conversation
	processing    bool
	refreshToken  int
	notice        string

	// Selección recordada entre Restore y el primer ApplyConversations.
	pending domain.ConversationID
}

func NewController(store SelectionStore, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		store: store,
		log:   log,
		now:   time.Now,
		state: StateLoading,
	}
}

// State devuelve el estado actual de la sesión.
func (c *Controller) State() State { return c.state }

// ActiveConversationID devuelve el ID activo; cero significa sin selección.
func (c *Controller) ActiveConversationID() domain.ConversationID { return c.activeID }

// IsProcessing indica si hay un envío en vuelo.
func (c *Controller) IsProcessing() bool { return c.processing }

// SidebarRefreshToken crece monotónicamente; cada incremento le pide a la
// capa de presentación un re-fetch del listado persistido.
func (c *Controller) SidebarRefreshToken() int { return c.refreshToken }

// Notice es el aviso visible al usuario (vacío si no hay ninguno).
func (c *Controller) Notice() string { return c.notice }

// Messages devuelve una copia de la lista de mensajes mostrada.
func (c *Controller) Messages() []domain.Message {
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Conversations devuelve el último listado persistido conocido.
func (c *Controller) Conversations() []domain.Conversation {
	out := make([]domain.Conversation, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// TemporaryConversation devuelve la conversación temporal, o nil. El slot es
// de solo lectura para quien lo consulta; el controlador es el único dueño.
func (c *Controller) TemporaryConversation() *domain.Conversation {
	if c.temp == nil {
		return nil
	}
	conv := *c.temp
	conv.Messages = append([]domain.Message(nil), c.temp.Messages...)
	return &conv
}

// Restore arranca la sesión: lee la selección guardada y entra en Loading a
// la espera del primer listado. Si la copia de render cacheada coincide con
// la selección, sus mensajes se muestran de inmediato; cualquier desajuste
// cuenta como "sin caché utilizable" y se descarta. La reconciliación real
// sucede en ApplyConversations.
func (c *Controller) Restore() {
	stored, ok := c.store.Load()
	if !ok {
		c.store.ClearCachedConversation()
		c.state = StateLoading
		return
	}
	c.pending = stored
	if cached, has := c.store.LoadCachedConversation(); has {
		if cached.ID == stored {
			c.messages = append([]domain.Message(nil), cached.Messages...)
		} else {
			c.store.ClearCachedConversation()
		}
	}
	c.state = StateLoading
}

// ApplyConversations reconcilia un fetch de listado terminado.
//
// Con error: degrada a Unselected con un aviso, sin tocar el storage (el
// guard de selección vencida aplica solo a un backend que respondió vacío).
// Con listado vacío: NoConversationsFound — limpia la selección guardada y
// crea una conversación temporal de bienvenida. Con datos: honra la selección
// recordada si sigue existiendo, o cae a la conversación más reciente.
func (c *Controller) ApplyConversations(list []domain.Conversation, fetchErr error) {
	if fetchErr != nil {
		c.log.Warn("conversation list fetch failed", zap.Error(fetchErr))
		if c.temp != nil || c.processing {
			// Un refetch fallido en segundo plano no roba la sesión en curso.
			return
		}
		c.state = StateUnselected
		c.activeID = domain.ConversationID{}
		c.messages = nil
		c.notice = BackendDownNotice
		c.pending = domain.ConversationID{}
		return
	}

	c.notice = ""
	c.conversations = list

	if len(list) == 0 {
		if c.temp != nil {
			// La temporal abierta sigue siendo la sesión; el backend vacío
			// no tiene nada que reconciliar.
			return
		}
		// Selecciones guardadas que referencian un backend reseteado no deben
		// sobrevivir al próximo arranque. La bienvenida no persiste su ID: el
		// storage queda limpio.
		c.store.Clear()
		c.store.ClearCachedConversation()
		c.startTemporary(false)
		return
	}

	desired := c.pending
	c.pending = domain.ConversationID{}

	switch {
	case c.temp != nil:
		// Temporal abierta: el refetch solo actualiza el listado.
		return
	case c.processing:
		// Nunca se re-selecciona con un envío en vuelo; la respuesta debe
		// aterrizar en la conversación que la originó.
		return
	case desired.IsTemporary():
		// La sesión anterior murió con una temporal sin enviar: se retoma
		// como cáscara vacía con el mismo ID.
		c.temp = &domain.Conversation{
			ID:        desired,
			Title:     domain.DefaultConversationTitle,
			CreatedAt: c.now(),
		}
		c.setActive(desired)
		c.messages = nil
		c.state = StateTemporary
	case desired.IsPersisted():
		if conv, ok := findConversation(list, desired); ok {
			c.setActive(desired)
			c.messages = append([]domain.Message(nil), conv.Messages...)
			c.state = StatePersisted
			c.cacheActive()
			return
		}
		c.log.Info("stored selection no longer exists, falling back",
			zap.String("stored_id", desired.String()))
		c.selectMostRecent(list)
	case c.activeID.IsPersisted():
		// Refetch con una persistida activa: servidor manda, pero un fetch
		// viejo no puede acortar la lista ya mostrada.
		if conv, ok := findConversation(list, c.activeID); ok && len(conv.Messages) >= len(c.messages) {
			c.messages = append([]domain.Message(nil), conv.Messages...)
			c.cacheActive()
		}
	default:
		c.selectMostRecent(list)
	}
}

// NewConversation crea la temporal y la selecciona. A lo sumo existe una:
// una segunda llamada sin enviar reemplaza a la anterior.
func (c *Controller) NewConversation() error {
	if c.processing {
		return ErrBusy
	}
	c.startTemporary(true)
	return nil
}

// SelectConversation cambia la conversación activa. Con una temporal abierta
// solo se puede seleccionar la temporal misma; con un envío en vuelo se
// rechaza todo cambio.
func (c *Controller) SelectConversation(id domain.ConversationID) error {
	if c.processing {
		return ErrBusy
	}
	if c.temp != nil {
		if id != c.temp.ID {
			return ErrTemporaryPinned
		}
		c.setActive(id)
		c.messages = append([]domain.Message(nil), c.temp.Messages...)
		c.state = StateTemporary
		return nil
	}
	conv, ok := findConversation(c.conversations, id)
	if !ok {
		return ErrUnknownConversation
	}
	c.setActive(id)
	c.messages = append([]domain.Message(nil), conv.Messages...)
	c.state = StatePersisted
	c.cacheActive()
	return nil
}

// BeginSend valida el texto, agrega el mensaje del usuario de forma optimista
// y marca el envío en vuelo. Devuelve el pedido que la capa de presentación
// debe ejecutar; el resultado reingresa por ApplySendResult.
func (c *Controller) BeginSend(text string) (SendRequest, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return SendRequest{}, ErrEmptyMessage
	}
	if c.processing {
		return SendRequest{}, ErrBusy
	}

	msg := domain.Message{
		ID:        uuid.NewString(),
		Content:   trimmed,
		Sender:    domain.SenderUser,
		CreatedAt: c.now(),
	}
	c.messages = append(c.messages, msg)
	if c.temp != nil && c.activeID == c.temp.ID {
		c.temp.Messages = append(c.temp.Messages, msg)
	}
	c.processing = true

	req := SendRequest{Text: trimmed}
	if c.activeID.IsPersisted() {
		req.ConversationID = c.activeID
	}
	return req, nil
}

// ApplySendResult reconcilia un envío terminado. Con éxito agrega la
// respuesta del asistente y, si el backend asignó un ID nuevo estando la
// sesión en Temporary/Unselected, promueve: descarta la temporal, fija el ID
// persistido, guarda la selección y fuerza el refresco del sidebar. La
// promoción ocurre a lo sumo una vez por conversación.
//
// Con error solo se loggea: el mensaje optimista queda visible sin respuesta
// y sin rollback. Es la decisión deliberada de "fail forward" del diseño
// original; no corregirla en silencio.
func (c *Controller) ApplySendResult(assistantText string, newConversationID int64, sendErr error) {
	defer func() { c.processing = false }()

	if sendErr != nil {
		c.log.Error("send failed, keeping optimistic message", zap.Error(sendErr))
		return
	}

	reply := domain.Message{
		ID:        uuid.NewString(),
		Content:   assistantText,
		Sender:    domain.SenderAssistant,
		CreatedAt: c.now(),
	}
	c.messages = append(c.messages, reply)

	if newConversationID != 0 && !c.activeID.IsPersisted() {
		c.temp = nil
		c.setActive(domain.PersistedID(newConversationID))
		c.state = StatePersisted
		c.refreshToken++
	} else if c.temp != nil && c.activeID == c.temp.ID {
		c.temp.Messages = append(c.temp.Messages, reply)
	}
	c.cacheActive()
}

// CloseTemporary descarta la conversación temporal. La selección cae al
// listado persistido: se fuerza un re-fetch y ApplyConversations elige la más
// reciente, o la bienvenida si el backend quedó vacío.
func (c *Controller) CloseTemporary() error {
	if c.processing {
		return ErrBusy
	}
	if c.temp == nil {
		return ErrNoTemporaryConversation
	}
	c.temp = nil
	c.activeID = domain.ConversationID{}
	c.messages = nil
	c.store.Clear()
	c.store.ClearCachedConversation()
	c.state = StateLoading
	c.refreshToken++
	return nil
}

func (c *Controller) startTemporary(persist bool) {
	conv := &domain.Conversation{
		ID:        domain.NewTemporaryID(c.now()),
		Title:     domain.DefaultConversationTitle,
		CreatedAt: c.now(),
	}
	c.temp = conv
	c.messages = nil
	if persist {
		c.setActive(conv.ID)
	} else {
		c.activeID = conv.ID
	}
	c.state = StateTemporary
}

func (c *Controller) selectMostRecent(list []domain.Conversation) {
	if len(list) == 0 {
		c.activeID = domain.ConversationID{}
		c.messages = nil
		c.state = StateUnselected
		c.store.Clear()
		return
	}
	// El backend entrega en orden de creación ascendente: la última es la
	// más reciente.
	conv := list[len(list)-1]
	c.setActive(conv.ID)
	c.messages = append([]domain.Message(nil), conv.Messages...)
	c.state = StatePersisted
	c.cacheActive()
}

// setActive cambia el ID activo y persiste la selección. Un fallo de storage
// nunca aborta la transición.
func (c *Controller) setActive(id domain.ConversationID) {
	c.activeID = id
	if id.IsZero() {
		c.store.Clear()
		c.store.ClearCachedConversation()
		return
	}
	c.store.Save(id)
}

// cacheActive guarda la copia de render de la conversación activa para el
// próximo arranque. Solo aplica a conversaciones persistidas.
func (c *Controller) cacheActive() {
	if !c.activeID.IsPersisted() {
		return
	}
	conv := domain.Conversation{
		ID:       c.activeID,
		Messages: append([]domain.Message(nil), c.messages...),
	}
	if found, ok := findConversation(c.conversations, c.activeID); ok {
		conv.Title = found.Title
		conv.CreatedAt = found.CreatedAt
	}
	c.store.SaveCachedConversation(conv)
}

func findConversation(list []domain.Conversation, id domain.ConversationID) (domain.Conversation, bool) {
	for _, conv := range list {
		if conv.ID == id {
			return conv, true
		}
	}
	return domain.Conversation{}, false
}
