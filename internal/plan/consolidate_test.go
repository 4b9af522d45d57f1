package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldroute/internal/model"
)

func ord(id, name, address, postcode, city, ws, we string, service, chilled, frozen int) model.Order {
	return model.Order{
		ID: id, Name: name, Address: address, Postcode: postcode, City: city,
		WindowStart: ws, WindowEnd: we, ServiceMin: service,
		ChilledQty: chilled, FrozenQty: frozen,
	}
}

func TestConsolidateMergesSameAddressAndWindow(t *testing.T) {
	orders := []model.Order{
		ord("a", "Bakery", "Main 1", "1011AB", "Amsterdam", "08:00", "12:00", 10, 3, 0),
		ord("b", "Bakery Extra", "main 1 ", "1011ab", "Amsterdam", "08:00", "12:00", 15, 4, 2),
	}
	out := Consolidate(orders)
	require.Len(t, out, 1)
	assert.Equal(t, 7, out[0].ChilledQty)
	assert.Equal(t, 2, out[0].FrozenQty)
	assert.Equal(t, 15, out[0].ServiceMin, "service takes the max")
	assert.Equal(t, "Bakery + Bakery Extra", out[0].Name)
	assert.Equal(t, "a", out[0].ID, "merged order keeps the first id")
}

func TestConsolidateKeepsDifferentWindowsApart(t *testing.T) {
	orders := []model.Order{
		ord("a", "Shop", "Main 1", "1011AB", "Amsterdam", "08:00", "12:00", 10, 3, 0),
		ord("b", "Shop", "Main 1", "1011AB", "Amsterdam", "13:00", "17:00", 10, 4, 0),
	}
	out := Consolidate(orders)
	assert.Len(t, out, 2)
}

func TestConsolidateDropsZeroLoadOrders(t *testing.T) {
	orders := []model.Order{
		ord("a", "Empty", "Main 1", "1011AB", "Amsterdam", "08:00", "12:00", 10, 0, 0),
		ord("b", "Real", "Main 2", "1011AB", "Amsterdam", "08:00", "12:00", 10, 1, 0),
	}
	out := Consolidate(orders)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}

func TestConsolidateIsIdempotent(t *testing.T) {
	orders := []model.Order{
		ord("a", "One", "Main 1", "1011AB", "Amsterdam", "08:00", "12:00", 10, 3, 1),
		ord("b", "Two", "Main 1", "1011AB", "Amsterdam", "08:00", "12:00", 5, 2, 0),
		ord("c", "Three", "Side 9", "2022CD", "Utrecht", "09:00", "11:00", 10, 1, 1),
	}
	once := Consolidate(orders)
	twice := Consolidate(once)
	assert.Equal(t, once, twice)
}

func TestSortPoolByStrategy(t *testing.T) {
	pool := []model.Order{
		ord("a", "", "x", "3000", "c", "10:00", "12:00", 0, 1, 0),
		ord("b", "", "y", "1000", "c", "09:00", "12:00", 0, 1, 0),
		ord("c", "", "z", "2000", "c", "09:00", "12:00", 0, 1, 0),
	}

	jit := append([]model.Order(nil), pool...)
	sortPool(jit, model.StrategyJIT)
	assert.Equal(t, []string{"b", "c", "a"}, []string{jit[0].ID, jit[1].ID, jit[2].ID})

	dens := append([]model.Order(nil), pool...)
	sortPool(dens, model.StrategyDensity)
	assert.Equal(t, []string{"b", "c", "a"}, []string{dens[0].ID, dens[1].ID, dens[2].ID})

	dens[0].Postcode = "9000"
	sortPool(dens, model.StrategyDensity)
	assert.Equal(t, "c", dens[0].ID)
}
