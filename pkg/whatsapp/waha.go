package whatsapp

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mariovalmir/chatwoot/internal/jid"
	"github.com/mariovalmir/chatwoot/internal/payload"
	"github.com/mariovalmir/chatwoot/internal/service"
	"github.com/mariovalmir/chatwoot/pkg/whatsapp/types"
)

// WAHAClient reads identity and group metadata from a WAHA session.
type WAHAClient struct {
	api     *apiClient
	session string
}

func NewWAHAClient(baseURL, apiKey, session string, opts ClientOptions) *WAHAClient {
	return &WAHAClient{
		api:     newAPIClient("waha", baseURL, types.HeaderWAHAKey, apiKey, opts),
		session: strings.TrimSpace(session),
	}
}

func (c *WAHAClient) sessionPath(parts ...string) string {
	var b strings.Builder
	b.WriteString(types.APIBase + "/" + url.PathEscape(c.session))
	for _, p := range parts {
		b.WriteString(p)
	}
	return b.String()
}

// ResolveOpaqueIdentity asks the session for the phone behind a LID. An
// unknown LID yields "".
func (c *WAHAClient) ResolveOpaqueIdentity(ctx context.Context, lid string) (string, error) {
	lid = strings.TrimSpace(lid)
	if lid == "" {
		return "", nil
	}
	body, found, err := c.api.call(ctx, http.MethodGet, c.sessionPath(types.EndpointLIDs, "/", url.PathEscape(lid)), nil, nil)
	if err != nil || !found {
		return "", err
	}
	return lidPhone(body), nil
}

func lidPhone(body any) string {
	switch v := body.(type) {
	case []any:
		if len(v) == 0 {
			return ""
		}
		return lidPhone(v[0])
	case map[string]any:
		return payload.String(v["pn"])
	default:
		return payload.String(v)
	}
}

// GroupSubject returns the group's subject, or "" when the session does not
// know the group.
func (c *WAHAClient) GroupSubject(ctx context.Context, groupJID string) (string, error) {
	if strings.TrimSpace(groupJID) == "" || c.session == "" {
		return "", nil
	}
	body, found, err := c.api.call(ctx, http.MethodGet, c.sessionPath(types.EndpointGroups, "/", url.PathEscape(groupJID)), nil, nil)
	if err != nil || !found {
		return "", err
	}
	return groupSubject(body), nil
}

// ProfilePictureURL returns the picture of a contact or group. Groups are
// served by the session's group API, contacts by the shared contacts API.
func (c *WAHAClient) ProfilePictureURL(ctx context.Context, chatJID string, refresh bool) (string, error) {
	chatJID = strings.TrimSpace(chatJID)
	if chatJID == "" || c.session == "" {
		return "", nil
	}

	var (
		path  string
		query = url.Values{"refresh": {strconv.FormatBool(refresh)}}
	)
	if jid.IsGroup(chatJID) {
		path = c.sessionPath(types.EndpointGroups, "/", url.PathEscape(chatJID), types.EndpointGroupPicture)
	} else {
		contactID := contactIdentifier(chatJID)
		if contactID == "" {
			return "", nil
		}
		path = types.APIBase + types.EndpointProfilePicture
		query.Set("contactId", contactID)
		query.Set("session", c.session)
	}

	body, found, err := c.api.call(ctx, http.MethodGet, path, query, nil)
	if err != nil || !found {
		return "", err
	}
	return pictureURL(body), nil
}

// SessionStatus returns the raw WAHA status of the session, e.g. WORKING.
func (c *WAHAClient) SessionStatus(ctx context.Context) (string, error) {
	body, found, err := c.api.call(ctx, http.MethodGet, types.APIBase+types.EndpointSessions+"/"+url.PathEscape(c.session), nil, nil)
	if err != nil || !found {
		return "", err
	}
	return payload.AsMap(body).Str("status"), nil
}

// contactIdentifier returns the @c.us form WAHA expects for contacts.
func contactIdentifier(value string) string {
	if strings.Contains(value, "@") {
		if jid.IsLID(value) {
			return value
		}
		return jid.LegacyUserJID(value)
	}
	digits := jid.Digits(value)
	if digits == "" {
		return ""
	}
	return digits + "@" + jid.ServerLegacyUser
}

func groupSubject(body any) string {
	if list, ok := body.([]any); ok {
		if len(list) == 0 {
			return ""
		}
		body = list[0]
	}
	data := payload.AsMap(body)
	if data == nil {
		return ""
	}
	g := types.Group{
		Subject: data.First(payload.P("subject"), payload.P("response", "subject")),
		Name:    data.First(payload.P("name"), payload.P("response", "name")),
		Title:   data.Str("title"),
	}
	return g.DisplayName()
}

func pictureURL(body any) string {
	switch v := body.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		for _, item := range v {
			if u := pictureURL(item); u != "" {
				return u
			}
		}
		return ""
	default:
		data := payload.AsMap(v)
		if data == nil {
			return ""
		}
		if u := data.Str("url"); u != "" {
			return u
		}
		return service.ProfilePictureURL(data)
	}
}

var _ GatewayClient = (*WAHAClient)(nil)
