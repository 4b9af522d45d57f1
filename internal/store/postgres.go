package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"coldroute/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the schema when it does not exist yet. Trip stops and cost
// breakdowns are stored as JSONB: they are written and read whole, never
// queried by field.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL,
			postcode TEXT NOT NULL,
			city TEXT NOT NULL,
			window_start TEXT NOT NULL,
			window_end TEXT NOT NULL,
			service_min INT NOT NULL DEFAULT 0,
			chilled_qty INT NOT NULL DEFAULT 0,
			frozen_qty INT NOT NULL DEFAULT 0,
			route_ref TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS vehicles (
			id UUID PRIMARY KEY,
			type TEXT NOT NULL,
			chilled_cap INT NOT NULL,
			frozen_cap INT NOT NULL,
			hourly_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			fuel_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			consumption_per_100 DOUBLE PRECISION NOT NULL DEFAULT 0,
			flat_trip_fee DOUBLE PRECISION NOT NULL DEFAULT 0,
			monthly_fixed DOUBLE PRECISION NOT NULL DEFAULT 0,
			co2_per_km DOUBLE PRECISION NOT NULL DEFAULT 0,
			available BOOLEAN NOT NULL DEFAULT TRUE,
			seq INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS plans (
			id UUID PRIMARY KEY,
			result JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS trips (
			id UUID PRIMARY KEY,
			plan_id UUID,
			vehicle_id TEXT NOT NULL,
			vehicle_type TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			duration_min INT NOT NULL,
			distance_km DOUBLE PRECISION NOT NULL,
			co2_kg DOUBLE PRECISION NOT NULL,
			stops JSONB NOT NULL,
			cost JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) CreateOrders(ctx context.Context, orders []model.Order) ([]model.Order, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO orders (id, name, address, postcode, city, window_start, window_end, service_min, chilled_qty, frozen_qty, route_ref)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, address=EXCLUDED.address, postcode=EXCLUDED.postcode, city=EXCLUDED.city,
				window_start=EXCLUDED.window_start, window_end=EXCLUDED.window_end, service_min=EXCLUDED.service_min,
				chilled_qty=EXCLUDED.chilled_qty, frozen_qty=EXCLUDED.frozen_qty, route_ref=EXCLUDED.route_ref`,
			o.ID, o.Name, o.Address, o.Postcode, o.City, o.WindowStart, o.WindowEnd, o.ServiceMin, o.ChilledQty, o.FrozenQty, o.RouteRef)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

const orderCols = `id::text, name, address, postcode, city, window_start, window_end, service_min, chilled_qty, frozen_qty, route_ref`

func scanOrder(rows *sql.Rows) (model.Order, error) {
	var o model.Order
	err := rows.Scan(&o.ID, &o.Name, &o.Address, &o.Postcode, &o.City, &o.WindowStart, &o.WindowEnd, &o.ServiceMin, &o.ChilledQty, &o.FrozenQty, &o.RouteRef)
	return o, err
}

func (p *Postgres) ListOrders(ctx context.Context, cursor string, limit int) ([]model.Order, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Order{}
	var last string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, o)
		last = o.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) AllOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteOrders(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	for _, id := range ids {
		res, err := p.db.ExecContext(ctx, `DELETE FROM orders WHERE id::text = $1`, id)
		if err != nil {
			return deleted, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			deleted++
		}
	}
	return deleted, nil
}

func (p *Postgres) ReplaceFleet(ctx context.Context, fleet []model.Vehicle) ([]model.Vehicle, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicles`); err != nil {
		return nil, err
	}
	out := make([]model.Vehicle, 0, len(fleet))
	for i, v := range fleet {
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO vehicles (id, type, chilled_cap, frozen_cap, hourly_rate, fuel_price, consumption_per_100, flat_trip_fee, monthly_fixed, co2_per_km, available, seq)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			v.ID, v.Type, v.ChilledCap, v.FrozenCap, v.HourlyRate, v.FuelPrice, v.ConsumptionPer100, v.FlatTripFee, v.MonthlyFixed, v.CO2PerKm, v.Available, i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

const vehicleCols = `id::text, type, chilled_cap, frozen_cap, hourly_rate, fuel_price, consumption_per_100, flat_trip_fee, monthly_fixed, co2_per_km, available`

func (p *Postgres) ListFleet(ctx context.Context) ([]model.Vehicle, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+vehicleCols+` FROM vehicles ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Vehicle{}
	for rows.Next() {
		var v model.Vehicle
		if err := rows.Scan(&v.ID, &v.Type, &v.ChilledCap, &v.FrozenCap, &v.HourlyRate, &v.FuelPrice, &v.ConsumptionPer100, &v.FlatTripFee, &v.MonthlyFixed, &v.CO2PerKm, &v.Available); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	var v model.Vehicle
	row := p.db.QueryRowContext(ctx, `SELECT `+vehicleCols+` FROM vehicles WHERE id::text = $1`, id)
	err := row.Scan(&v.ID, &v.Type, &v.ChilledCap, &v.FrozenCap, &v.HourlyRate, &v.FuelPrice, &v.ConsumptionPer100, &v.FlatTripFee, &v.MonthlyFixed, &v.CO2PerKm, &v.Available)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vehicle{}, ErrNotFound
	}
	return v, err
}

func (p *Postgres) SavePlan(ctx context.Context, plan model.PlanResult) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	blob, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO plans (id, result) VALUES ($1,$2) ON CONFLICT (id) DO UPDATE SET result=EXCLUDED.result`, plan.ID, blob); err != nil {
		return err
	}
	for _, t := range plan.Trips {
		if t.PlanID == "" {
			t.PlanID = plan.ID
		}
		if err := upsertTrip(ctx, tx, t); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertTrip(ctx context.Context, tx *sql.Tx, t model.Trip) error {
	stops, err := json.Marshal(t.Stops)
	if err != nil {
		return err
	}
	cost, err := json.Marshal(t.Cost)
	if err != nil {
		return err
	}
	var pid any
	if t.PlanID != "" {
		pid = t.PlanID
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO trips (id, plan_id, vehicle_id, vehicle_type, start_time, end_time, duration_min, distance_km, co2_kg, stops, cost)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET vehicle_id=EXCLUDED.vehicle_id, vehicle_type=EXCLUDED.vehicle_type, start_time=EXCLUDED.start_time,
			end_time=EXCLUDED.end_time, duration_min=EXCLUDED.duration_min, distance_km=EXCLUDED.distance_km, co2_kg=EXCLUDED.co2_kg,
			stops=EXCLUDED.stops, cost=EXCLUDED.cost`,
		t.ID, pid, t.VehicleID, t.VehicleType, t.StartTime, t.EndTime, t.DurationMin, t.DistanceKm, t.CO2Kg, stops, cost)
	return err
}

func (p *Postgres) GetPlan(ctx context.Context, id string) (model.PlanResult, error) {
	var blob []byte
	err := p.db.QueryRowContext(ctx, `SELECT result FROM plans WHERE id::text = $1`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlanResult{}, ErrNotFound
	}
	if err != nil {
		return model.PlanResult{}, err
	}
	var plan model.PlanResult
	if err := json.Unmarshal(blob, &plan); err != nil {
		return model.PlanResult{}, err
	}
	return plan, nil
}

const tripCols = `id::text, COALESCE(plan_id::text, ''), vehicle_id, vehicle_type, start_time, end_time, duration_min, distance_km, co2_kg, stops, cost`

func scanTrip(scan func(dest ...any) error) (model.Trip, error) {
	var t model.Trip
	var stops, cost []byte
	if err := scan(&t.ID, &t.PlanID, &t.VehicleID, &t.VehicleType, &t.StartTime, &t.EndTime, &t.DurationMin, &t.DistanceKm, &t.CO2Kg, &stops, &cost); err != nil {
		return model.Trip{}, err
	}
	if err := json.Unmarshal(stops, &t.Stops); err != nil {
		return model.Trip{}, err
	}
	if err := json.Unmarshal(cost, &t.Cost); err != nil {
		return model.Trip{}, err
	}
	return t, nil
}

func (p *Postgres) ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+tripCols+` FROM trips WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+tripCols+` FROM trips ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Trip{}
	var last string
	for rows.Next() {
		t, err := scanTrip(rows.Scan)
		if err != nil {
			return nil, "", err
		}
		out = append(out, t)
		last = t.ID
	}
	var next string
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) GetTrip(ctx context.Context, id string) (model.Trip, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+tripCols+` FROM trips WHERE id::text = $1`, id)
	t, err := scanTrip(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Trip{}, ErrNotFound
	}
	return t, err
}

func (p *Postgres) UpdateTrip(ctx context.Context, trip model.Trip) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM trips WHERE id::text = $1)`, trip.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if err := upsertTrip(ctx, tx, trip); err != nil {
		return err
	}
	return tx.Commit()
}
