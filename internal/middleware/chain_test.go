package middleware

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func tagging(tag string, order *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*order = append(*order, tag)
			next.ServeHTTP(w, r)
		})
	}
}

func TestStackOrder(t *testing.T) {
	var order []string
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	s := Stack{tagging("a", &order)}.With(tagging("b", &order), nil).With(tagging("c", &order))
	if len(s) != 3 {
		t.Fatalf("len = %d, want 3", len(s))
	}
	s.Wrap(final).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	want := []string{"a", "b", "c", "handler"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestStackWithDoesNotAlias(t *testing.T) {
	var order []string
	base := make(Stack, 0, 4).With(tagging("base", &order))
	left := base.With(tagging("left", &order))
	_ = base.With(tagging("right", &order))

	left.Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if want := []string{"base", "left"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestStackNilHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	Stack{}.Wrap(nil).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestStackWhen(t *testing.T) {
	var order []string
	h := Stack{tagging("always", &order)}.
		When(false, tagging("never", &order)).
		When(true, tagging("enabled", &order)).
		Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if want := []string{"always", "enabled"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}
