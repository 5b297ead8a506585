package di

import "testing"

type greeter struct{ name string }

func TestContainer_FactoryRunsOnce(t *testing.T) {
	c := NewContainer()
	calls := 0

	tok := NewToken[*greeter]("test:greeter")
	RegisterToken(c, tok, func(sr ServiceRegistry) *greeter {
		calls++
		return &greeter{name: sr.Get("name").(string)}
	})
	c.Register("name", "router")

	first := GetToken(c, tok)
	second := GetToken(c, tok)

	if first != second {
		t.Error("expected the same instance on repeated Get")
	}
	if calls != 1 {
		t.Errorf("expected factory to run once, ran %d times", calls)
	}
	if first.name != "router" {
		t.Errorf("expected name router, got %s", first.name)
	}
}

func TestContainer_UnknownServicePanics(t *testing.T) {
	c := NewContainer()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for unregistered service")
		}
	}()
	c.Get("missing")
}

func TestContainer_Has(t *testing.T) {
	c := NewContainer()
	RegisterTokenValue(c, NewToken[int]("answer"), 42)

	if !c.Has("answer") {
		t.Error("expected Has to report registered value")
	}
	if c.Has("question") {
		t.Error("expected Has to be false for unknown name")
	}
}

func TestGetToken_NilFactoryResultIsZero(t *testing.T) {
	c := NewContainer()
	tok := NewToken[interface{ Name() string }]("test:optional")
	RegisterToken(c, tok, func(ServiceRegistry) interface{ Name() string } { return nil })

	if got := GetToken(c, tok); got != nil {
		t.Errorf("expected nil optional service, got %v", got)
	}
}
