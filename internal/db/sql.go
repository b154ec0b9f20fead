package db

import "fmt"

const (
	createExtensionSQL = `
CREATE EXTENSION IF NOT EXISTS vector
`
	dropItemsSQL = `
DROP TABLE IF EXISTS items
`
	// createItemsSQLFormat takes the vector dimensions.
	createItemsSQLFormat = `
CREATE TABLE items (
	id bigserial PRIMARY KEY,
	actual text NOT NULL,
	embedding vector(%d) NOT NULL,
	links text[] NOT NULL DEFAULT '{}',
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
)
`
	createUpdatedAtFuncSQL = `
CREATE OR REPLACE FUNCTION trigger_updated_at()
RETURNS TRIGGER AS $$
BEGIN
	NEW.updated_at = now();
	RETURN NEW;
END;
$$ LANGUAGE plpgsql
`
	createUpdatedAtTriggerSQL = `
CREATE TRIGGER items_trigger_on_updated_at
BEFORE UPDATE ON items
FOR EACH ROW
EXECUTE FUNCTION trigger_updated_at()
`
	insertItemSQL = `
INSERT INTO items
	(actual, embedding, links)
VALUES
	($1, $2::vector, $3)
RETURNING id, created_at, updated_at
`
	deleteItemSQL = `
DELETE FROM items
WHERE id = $1
`
	searchItemsSQL = `
SELECT
	id, actual, links, embedding <-> $1::vector AS distance
FROM items
ORDER BY
	embedding <-> $1::vector
LIMIT $2
`
	countItemsSQL = `
SELECT count(*) FROM items
`
	extensionVersionSQL = `
SELECT extversion FROM pg_extension WHERE extname = 'vector'
`
)

type initStep struct {
	name string
	sql  string
}

// initSteps returns the schema statements in execution order.
func initSteps(dims int) []initStep {
	return []initStep{
		{"create extension", createExtensionSQL},
		{"drop items", dropItemsSQL},
		{"create items", fmt.Sprintf(createItemsSQLFormat, dims)},
		{"create trigger function", createUpdatedAtFuncSQL},
		{"create trigger", createUpdatedAtTriggerSQL},
	}
}
