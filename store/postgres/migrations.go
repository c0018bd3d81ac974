package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the cyclebill store.
var Migrations = migrate.NewGroup("cyclebill")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_cyclebill_plans",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cyclebill_plans (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    slug        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    currency    TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'active',
    price       NUMERIC(14,2) NOT NULL DEFAULT 0,
    cycle_days  INT NOT NULL,
    term_days   INT NOT NULL DEFAULT 0,
    products    JSONB NOT NULL DEFAULT '[]',
    metadata    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_cyclebill_plans_slug ON cyclebill_plans (slug) WHERE slug <> '';
CREATE INDEX IF NOT EXISTS idx_cyclebill_plans_status ON cyclebill_plans (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cyclebill_plans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_cyclebill_subscriptions",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cyclebill_subscriptions (
    id          TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    plan_id     TEXT NOT NULL REFERENCES cyclebill_plans (id),
    status      TEXT NOT NULL DEFAULT 'ACTIVE',
    started_at  TIMESTAMPTZ NOT NULL,
    metadata    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_cyclebill_subscriptions_customer ON cyclebill_subscriptions (customer_id);
CREATE INDEX IF NOT EXISTS idx_cyclebill_subscriptions_status ON cyclebill_subscriptions (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cyclebill_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_cyclebill_cycles",
			Version: "20260301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cyclebill_cycles (
    id               TEXT PRIMARY KEY,
    subscription_id  TEXT NOT NULL REFERENCES cyclebill_subscriptions (id),
    currency         TEXT NOT NULL,
    cycle_start      DATE NOT NULL,
    cycle_end        DATE NOT NULL,
    payment_due_date DATE NOT NULL,
    total_amount     NUMERIC(14,2) NOT NULL DEFAULT 0,
    paid_amount      NUMERIC(14,2) NOT NULL DEFAULT 0,
    pending_balance  NUMERIC(14,2) NOT NULL DEFAULT 0,
    credit_balance   NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
    payment_status   TEXT NOT NULL DEFAULT 'PENDING',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (cycle_end >= cycle_start)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_cyclebill_cycles_subscription_start
    ON cyclebill_cycles (subscription_id, cycle_start);

CREATE TABLE IF NOT EXISTS cyclebill_cycle_details (
    id                 TEXT PRIMARY KEY,
    cycle_id           TEXT NOT NULL REFERENCES cyclebill_cycles (id) ON DELETE CASCADE,
    product_id         TEXT NOT NULL,
    planned_quantity   INT NOT NULL DEFAULT 0,
    delivered_quantity INT NOT NULL DEFAULT 0 CHECK (delivered_quantity >= 0),
    remaining_balance  INT NOT NULL DEFAULT 0 CHECK (remaining_balance >= 0),
    reserved_quantity  INT NOT NULL DEFAULT 0 CHECK (reserved_quantity >= 0),
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (cycle_id, product_id)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS cyclebill_cycle_details;
DROP TABLE IF EXISTS cyclebill_cycles;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_cyclebill_payments",
			Version: "20260301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cyclebill_payments (
    id               TEXT PRIMARY KEY,
    cycle_id         TEXT NOT NULL REFERENCES cyclebill_cycles (id),
    kind             TEXT NOT NULL,
    amount           NUMERIC(14,2) NOT NULL CHECK (amount > 0),
    currency         TEXT NOT NULL,
    method           TEXT NOT NULL,
    payment_date     TIMESTAMPTZ NOT NULL,
    reference        TEXT NOT NULL DEFAULT '',
    notes            TEXT NOT NULL DEFAULT '',
    actor_id         TEXT NOT NULL DEFAULT '',
    related_cycle_id TEXT REFERENCES cyclebill_cycles (id),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_cyclebill_payments_cycle ON cyclebill_payments (cycle_id, payment_date);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cyclebill_payments_reference
    ON cyclebill_payments (cycle_id, reference)
    WHERE kind = 'payment' AND reference <> '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS cyclebill_payments`)
				return err
			},
		},
	)
}
