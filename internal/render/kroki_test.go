package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSyntax(t *testing.T) {
	assert.NoError(t, ValidateSyntax("@startuml\nclass A\n@enduml"))

	err := ValidateSyntax("class A\n@enduml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "@startuml")

	err = ValidateSyntax("@startuml\nclass A")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "@enduml")

	err = ValidateSyntax("@enduml\nclass A\n@startuml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before")
}

func TestRenderPostsSourceAndReturnsPNG(t *testing.T) {
	const fakePNG = "\x89PNG fake bytes"
	var gotPath, gotContentType, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		fmt.Fprint(w, fakePNG)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	png, err := c.Render(context.Background(), "@startuml\nA -> B\n@enduml")
	require.NoError(t, err)

	assert.Equal(t, fakePNG, string(png))
	assert.Equal(t, "/plantuml/png", gotPath)
	assert.Equal(t, "text/plain", gotContentType)
	assert.Contains(t, gotBody, "A -> B")
}

func TestRenderSurfacesServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "syntax error near line 2", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Render(context.Background(), "@startuml\nbroken\n@enduml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "syntax error near line 2")
}

func TestRenderUnreachableService(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := c.Render(context.Background(), "@startuml\n@enduml")
	assert.Error(t, err)
}

func TestComplexityCountsEntities(t *testing.T) {
	src := `@startuml
class User
class Account
interface Billing
enum Status
A --> B
@enduml`
	r := Complexity(src)
	assert.Equal(t, 4, r.Entities)
	assert.Empty(t, r.Warnings)
}

func TestComplexityWarnsOnLargeDiagrams(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("@startuml\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&sb, "class C%d\n", i)
	}
	for i := 0; i < 90; i++ {
		fmt.Fprintf(&sb, "C%d --> C%d\n", i%25, (i+1)%25)
	}
	sb.WriteString("@enduml")

	r := Complexity(sb.String())
	require.Len(t, r.Warnings, 2)
	assert.Contains(t, r.Warnings[0], ">100")
	assert.Contains(t, r.Warnings[1], ">20")
}
