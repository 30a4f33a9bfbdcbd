package session

import "github.com/KaiyuWei/chat-box/internal/domain"

// ProjectSidebar deriva la lista que muestra el sidebar: la conversación
// temporal (si existe) fija arriba, y las persistidas de más reciente a más
// antigua. Es una derivación pura: no escribe nada y se re-deriva cada vez
// que el listado cambia o el refresh token avanza.
func ProjectSidebar(fetched []domain.Conversation, temp *domain.Conversation) []domain.Conversation {
	out := make([]domain.Conversation, 0, len(fetched)+1)
	seen := make(map[domain.ConversationID]struct{}, len(fetched)+1)

	if temp != nil {
		out = append(out, *temp)
		seen[temp.ID] = struct{}{}
	}
	// El backend entrega en orden de creación ascendente; el sidebar quiere
	// la más reciente primero.
	for i := len(fetched) - 1; i >= 0; i-- {
		conv := fetched[i]
		if _, dup := seen[conv.ID]; dup {
			continue
		}
		seen[conv.ID] = struct{}{}
		out = append(out, conv)
	}
	return out
}
