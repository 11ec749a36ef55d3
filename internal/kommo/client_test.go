package kommo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("testbox",
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		WithBaseURL(srv.URL),
		WithRateLimit(1000),
	)

	var waits []time.Duration
	c.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

func TestClientRetriesOnRateLimit(t *testing.T) {
	attempts := 0
	c, waits := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 3 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"_embedded":{"custom_fields":[{"id":42,"name":"Budget","type":"numeric"}]}}`)
	})

	created, err := c.CreateCustomField(context.Background(), EntityLeads, CustomField{Name: "Budget", Type: "numeric"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), created.ID)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, *waits)
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", defaultRetryAfter},
		{"not-a-number", defaultRetryAfter},
		{"-3", defaultRetryAfter},
		{"0", 0},
		{"5", 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryAfter(tt.header), "header %q", tt.header)
	}
}

func TestClientSendsBearerToken(t *testing.T) {
	var auth string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := c.ListPipelines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", auth)
}

func TestClientAuthError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"title":"Unauthorized"}`)
	})

	_, err := c.ListRoles(context.Background())
	require.Error(t, err)
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
}

func TestClientTransportError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"title":"Bad Request","detail":"required_statuses validation failed"}`)
	})

	_, err := c.CreateCustomField(context.Background(), EntityLeads, CustomField{Name: "Budget"})
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadRequest, te.Status)
	assert.Contains(t, te.Body, "required_statuses")
}

func TestDeleteSemantics(t *testing.T) {
	t.Run("empty 2xx body is success", func(t *testing.T) {
		c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		})
		assert.NoError(t, c.DeletePipeline(context.Background(), 5))
	})

	t.Run("404 is success", func(t *testing.T) {
		c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"title":"Not Found"}`)
		})
		assert.NoError(t, c.DeleteCustomField(context.Background(), EntityContacts, 5))
	})

	t.Run("server errors propagate", func(t *testing.T) {
		c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		err := c.DeleteRole(context.Background(), 5)
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusInternalServerError, te.Status)
	})
}

func TestListStatusesRequestShape(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/leads/pipelines/42/statuses", r.URL.Path)
		assert.Equal(t, "required_fields", r.URL.Query().Get("with"))
		fmt.Fprint(w, `{"_embedded":{"statuses":[{"id":702,"name":"Contacted","sort":10}]}}`)
	})

	statuses, err := c.ListStatuses(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "Contacted", statuses[0].Name)
}

func TestListPipelinesEmptyBody(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	pipelines, err := c.ListPipelines(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pipelines)
}

func TestCreatePipelineUnwrapsEnvelope(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload []Pipeline
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload), "create takes a single-element array")
		require.Len(t, payload, 1)
		fmt.Fprintf(w, `{"_embedded":{"pipelines":[{"id":77,"name":%q}]}}`, payload[0].Name)
	})

	created, err := c.CreatePipeline(context.Background(), Pipeline{Name: "Sales"})
	require.NoError(t, err)
	assert.Equal(t, int64(77), created.ID)
	assert.Equal(t, "Sales", created.Name)
}

func TestDecodeFieldGroupsShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"embedded", `{"_embedded":{"custom_field_groups":[{"id":"default","name":"Main","sort":1}]}}`},
		{"flat", `{"custom_field_groups":[{"id":"default","name":"Main","sort":1}]}`},
		{"bare array", `[{"id":"default","name":"Main","sort":1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, err := decodeFieldGroups([]byte(tt.body))
			require.NoError(t, err)
			require.Len(t, groups, 1)
			assert.Equal(t, "default", groups[0].ID)
			assert.Equal(t, "Main", groups[0].Name)
		})
	}

	_, err := decodeFieldGroups([]byte(`"nonsense"`))
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestListCustomFieldsPagination(t *testing.T) {
	pages := []int{}
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		assert.Equal(t, "required_statuses,enums", r.URL.Query().Get("with"))
		pages = append(pages, len(pages)+1)

		var env fieldsEnvelope
		if page == "1" {
			env.Embedded.CustomFields = make([]CustomField, listPageLimit)
			for i := range env.Embedded.CustomFields {
				env.Embedded.CustomFields[i] = CustomField{ID: int64(i + 1), Name: fmt.Sprintf("f%d", i), Type: "text"}
			}
		} else {
			env.Embedded.CustomFields = []CustomField{{ID: 9999, Name: "last", Type: "text"}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(env))
	})

	fields, err := c.ListCustomFields(context.Background(), EntityLeads)
	require.NoError(t, err)
	assert.Len(t, fields, listPageLimit+1)
	assert.Len(t, pages, 2)
}

func TestPing(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account", r.URL.Path)
		fmt.Fprint(w, `{"id":123,"name":"Test","subdomain":"testbox"}`)
	})

	info, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123), info.ID)
	assert.Equal(t, "testbox", info.Subdomain)
}

func TestClientContextCancellation(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListPipelines(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
