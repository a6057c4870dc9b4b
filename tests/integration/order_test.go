//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"sync"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestPlaceOrder_NoAuth(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/v1/orders", "", newOrder(orderItem{Product: "citrus-vert", Qty: 1}))
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestPlaceOrder_ForgedToken(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/v1/orders", token(t, "mallory", "customer")+"x",
		newOrder(orderItem{Product: "citrus-vert", Qty: 1}))
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	resp := do(t, http.MethodPost, "/api/v1/orders", token(t, uniqueUser(t), "customer"), newOrder())
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestPlaceOrder_Success(t *testing.T) {
	user := uniqueUser(t)
	before := stockOf(t, "neroli-blanc")

	// The client-supplied price is ignored.
	resp := do(t, http.MethodPost, "/api/v1/orders", token(t, user, "customer"),
		newOrder(orderItem{Product: "neroli-blanc", Qty: 2, Price: 0.01}))
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)

	o := decodeJSON[orderResponse](t, resp)
	if !uuidPattern.MatchString(o.ID) {
		t.Errorf("id %q is not a UUID", o.ID)
	}
	if o.User != user {
		t.Errorf("user: got %q, want %q", o.User, user)
	}
	if o.Status != "pending" {
		t.Errorf("status: got %q, want pending", o.Status)
	}
	if o.TotalPrice != 99.8 {
		t.Errorf("totalPrice: got %v, want 99.8", o.TotalPrice)
	}
	if len(o.OrderItems) != 1 || o.OrderItems[0].Price != 49.9 {
		t.Errorf("orderItems: got %+v", o.OrderItems)
	}
	if o.ShippingAddress.City != "Paris" {
		t.Errorf("shippingAddress: got %+v", o.ShippingAddress)
	}
	if got := stockOf(t, "neroli-blanc"); got != before-2 {
		t.Errorf("stock: got %d, want %d", got, before-2)
	}
}

// Two concurrent buyers ask for the whole stock; exactly one wins.
func TestPlaceOrder_ConcurrentLastUnits(t *testing.T) {
	setStock(t, "limited-edition", 2)

	const buyers = 2
	codes := make([]int, buyers)
	bodies := make([]orderResponse, buyers)
	var wg sync.WaitGroup
	for i := range buyers {
		tok := token(t, uniqueUser(t), "customer")
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := do(t, http.MethodPost, "/api/v1/orders", tok,
				newOrder(orderItem{Product: "limited-edition", Qty: 2}))
			defer resp.Body.Close()
			codes[i] = resp.StatusCode
			if resp.StatusCode == http.StatusCreated {
				bodies[i] = decodeJSON[orderResponse](t, resp)
			}
		}()
	}
	wg.Wait()

	var created int
	for i, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
			if bodies[i].TotalPrice != 200 {
				t.Errorf("totalPrice: got %v, want 200", bodies[i].TotalPrice)
			}
		case http.StatusBadRequest:
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one order, got %d", created)
	}
	if got := stockOf(t, "limited-edition"); got != 0 {
		t.Errorf("stock: got %d, want 0", got)
	}
}

// Many buyers race for a small stock; stock never goes negative.
func TestPlaceOrder_NeverOversells(t *testing.T) {
	setStock(t, "discovery-set", 5)

	const buyers = 20
	var (
		mu      sync.Mutex
		created int
		wg      sync.WaitGroup
	)
	for range buyers {
		tok := token(t, uniqueUser(t), "customer")
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := do(t, http.MethodPost, "/api/v1/orders", tok,
				newOrder(orderItem{Product: "discovery-set", Qty: 1}))
			resp.Body.Close()
			if resp.StatusCode == http.StatusCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 5 {
		t.Errorf("created: got %d, want 5", created)
	}
	if got := stockOf(t, "discovery-set"); got != 0 {
		t.Errorf("stock: got %d, want 0", got)
	}
}

// A shortage on one line leaves every other line's stock untouched.
func TestPlaceOrder_AllOrNothing(t *testing.T) {
	setStock(t, "discovery-set", 5)
	before := stockOf(t, "oud-noir")
	user := uniqueUser(t)
	tok := token(t, user, "customer")

	resp := do(t, http.MethodPost, "/api/v1/orders", tok, newOrder(
		orderItem{Product: "oud-noir", Qty: 1},
		orderItem{Product: "discovery-set", Qty: 999},
	))
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusBadRequest)

	body := decodeJSON[errorResponse](t, resp)
	if body.Product != "discovery-set" {
		t.Errorf("product: got %q, want discovery-set", body.Product)
	}
	if got := stockOf(t, "oud-noir"); got != before {
		t.Errorf("oud-noir stock: got %d, want %d", got, before)
	}
	if got := stockOf(t, "discovery-set"); got != 5 {
		t.Errorf("discovery-set stock: got %d, want 5", got)
	}

	mine := do(t, http.MethodGet, "/api/v1/orders/myorders", tok, nil)
	defer mine.Body.Close()
	expectStatus(t, mine, http.StatusOK)
	if orders := decodeJSON[[]orderResponse](t, mine); len(orders) != 0 {
		t.Errorf("expected no orders, got %d", len(orders))
	}
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	tok := token(t, uniqueUser(t), "customer")

	resp := do(t, http.MethodPost, "/api/v1/orders", tok, newOrder(orderItem{Product: "X", Qty: 1}))
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)

	if body := decodeJSON[errorResponse](t, resp); body.Product != "X" {
		t.Errorf("product: got %q, want X", body.Product)
	}

	mine := do(t, http.MethodGet, "/api/v1/orders/myorders", tok, nil)
	defer mine.Body.Close()
	if orders := decodeJSON[[]orderResponse](t, mine); len(orders) != 0 {
		t.Errorf("expected no orders, got %d", len(orders))
	}
}

func TestOrderAccess(t *testing.T) {
	owner := token(t, uniqueUser(t), "customer")
	resp := do(t, http.MethodPost, "/api/v1/orders", owner, newOrder(orderItem{Product: "citrus-vert", Qty: 1}))
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)
	o := decodeJSON[orderResponse](t, resp)
	path := "/api/v1/orders/" + o.ID

	tests := []struct {
		name   string
		bearer string
		path   string
		want   int
	}{
		{name: "Owner", bearer: owner, path: path, want: http.StatusOK},
		{name: "Admin", bearer: token(t, "ops", "admin"), path: path, want: http.StatusOK},
		{name: "Stranger", bearer: token(t, uniqueUser(t), "customer"), path: path, want: http.StatusForbidden},
		{name: "Missing", bearer: owner, path: "/api/v1/orders/00000000-0000-0000-0000-000000000000", want: http.StatusNotFound},
		{name: "Malformed", bearer: owner, path: "/api/v1/orders/not-a-uuid", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodGet, tt.path, tt.bearer, nil)
			defer resp.Body.Close()
			expectStatus(t, resp, tt.want)
		})
	}
}

func TestAdminOrders(t *testing.T) {
	admin := token(t, "ops", "admin")
	customer := token(t, uniqueUser(t), "customer")

	resp := do(t, http.MethodPost, "/api/v1/orders", customer, newOrder(orderItem{Product: "musc-intime", Qty: 1}))
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)
	o := decodeJSON[orderResponse](t, resp)
	stock := stockOf(t, "musc-intime")

	list := do(t, http.MethodGet, "/api/v1/orders", customer, nil)
	list.Body.Close()
	expectStatus(t, list, http.StatusForbidden)

	list = do(t, http.MethodGet, "/api/v1/orders", admin, nil)
	defer list.Body.Close()
	expectStatus(t, list, http.StatusOK)
	if orders := decodeJSON[[]orderResponse](t, list); len(orders) == 0 {
		t.Error("admin list is empty")
	}

	statusPath := "/api/v1/orders/" + o.ID + "/status"
	upd := do(t, http.MethodPut, statusPath, admin, map[string]string{"status": "cancelled"})
	defer upd.Body.Close()
	expectStatus(t, upd, http.StatusOK)
	if got := decodeJSON[orderResponse](t, upd); got.Status != "cancelled" {
		t.Errorf("status: got %q, want cancelled", got.Status)
	}
	if got := stockOf(t, "musc-intime"); got != stock {
		t.Errorf("cancellation changed stock: got %d, want %d", got, stock)
	}

	back := do(t, http.MethodPut, statusPath, admin, map[string]string{"status": "pending"})
	defer back.Body.Close()
	expectStatus(t, back, http.StatusBadRequest)
}
