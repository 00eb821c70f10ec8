package registry

import "testing"

type fakeConn struct{ sent []any }

func (c *fakeConn) Send(v any) error { c.sent = append(c.sent, v); return nil }
func (c *fakeConn) Close() error     { return nil }

func TestRegisterLookup(t *testing.T) {
	r := New()
	c := &fakeConn{}
	r.Register("u1", c)

	got, ok := r.Lookup("u1")
	if !ok || got != c {
		t.Fatal("lookup failed")
	}
	if _, ok := r.Lookup("u2"); ok {
		t.Fatal("unexpected hit for unknown id")
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestReRegisterReplaces(t *testing.T) {
	r := New()
	old, fresh := &fakeConn{}, &fakeConn{}
	r.Register("u1", old)
	r.Register("u1", fresh)

	got, _ := r.Lookup("u1")
	if got != fresh {
		t.Fatal("newer connection must win")
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d", r.Len())
	}
}

func TestUnregisterConn(t *testing.T) {
	r := New()
	c := &fakeConn{}
	r.Register("u1", c)

	id, ok := r.UnregisterConn(c)
	if !ok || id != "u1" {
		t.Fatalf("got %q/%v", id, ok)
	}
	if _, ok := r.Lookup("u1"); ok {
		t.Fatal("entry must be gone")
	}
}

func TestUnregisterConnIgnoresReplaced(t *testing.T) {
	r := New()
	old, fresh := &fakeConn{}, &fakeConn{}
	r.Register("u1", old)
	r.Register("u1", fresh)

	// the stale handle's teardown must not evict the new connection
	if _, ok := r.UnregisterConn(old); ok {
		t.Fatal("stale connection should not match")
	}
	got, ok := r.Lookup("u1")
	if !ok || got != fresh {
		t.Fatal("replacement connection must survive")
	}
}
