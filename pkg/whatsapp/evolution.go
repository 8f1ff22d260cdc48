package whatsapp

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/mariovalmir/chatwoot/internal/identity"
	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/pkg/whatsapp/types"
)

// EvolutionClient reads group metadata and pictures from an Evolution API
// instance. Evolution has no LID lookup; LIDs resolve only through the
// alternate addresses its webhooks carry.
type EvolutionClient struct {
	api      *apiClient
	instance string
}

func NewEvolutionClient(baseURL, apiKey, instance string, opts ClientOptions) *EvolutionClient {
	return &EvolutionClient{
		api:      newAPIClient("evolution", baseURL, types.HeaderEvolutionKey, apiKey, opts),
		instance: strings.TrimSpace(instance),
	}
}

func (c *EvolutionClient) ResolveOpaqueIdentity(context.Context, string) (string, error) {
	return "", identity.ErrLookupUnsupported
}

func (c *EvolutionClient) GroupSubject(ctx context.Context, groupJID string) (string, error) {
	if strings.TrimSpace(groupJID) == "" || c.instance == "" {
		return "", nil
	}
	query := url.Values{"groupJid": {groupJID}}
	body, found, err := c.api.call(ctx, http.MethodGet, types.EndpointFindGroupInfos+"/"+url.PathEscape(c.instance), query, nil)
	if err != nil || !found {
		return "", err
	}
	return groupSubject(body), nil
}

// ProfilePictureURL asks the instance for a contact or group picture. refresh
// is ignored; Evolution always queries WhatsApp.
func (c *EvolutionClient) ProfilePictureURL(ctx context.Context, chatJID string, _ bool) (string, error) {
	number := strings.TrimSpace(chatJID)
	if number == "" || c.instance == "" {
		return "", nil
	}
	if !jid.IsGroup(number) && !jid.IsLID(number) {
		number = jid.NormalizeNumber(number)
	}
	body, found, err := c.api.call(ctx, http.MethodPost, types.EndpointFetchProfilePic+"/"+url.PathEscape(c.instance), nil,
		types.ProfilePictureRequest{Number: number})
	if err != nil || !found {
		return "", err
	}
	return pictureURL(body), nil
}

// SessionStatus returns the instance's connection state: open, connecting
// or close.
func (c *EvolutionClient) SessionStatus(ctx context.Context) (string, error) {
	body, found, err := c.api.call(ctx, http.MethodGet, types.EndpointConnectionState+"/"+url.PathEscape(c.instance), nil, nil)
	if err != nil || !found {
		return "", err
	}
	data := payload.AsMap(body)
	return data.First(payload.P("instance", "state"), payload.P("state")), nil
}

var _ GatewayClient = (*EvolutionClient)(nil)
