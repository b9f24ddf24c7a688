package shared_test

import (
	"errors"
	"fmt"
	"net/http"

	"retryrelay/internal/shared"
)

// Example_markKind shows how an upstream status is folded into the taxonomy
// while the original error stays reachable.
func Example_markKind() {
	upstream := errors.New("GET /users/7: unexpected status 404")

	err := shared.MarkKind(upstream, shared.KindNotFound)

	fmt.Println(err)
	fmt.Println(shared.KindOf(err), errors.Is(err, upstream))
	fmt.Println(shared.StatusOf(err) == http.StatusNotFound)

	// Output:
	// not found: GET /users/7: unexpected status 404
	// NotFound true
	// true
}
