package httpserver

import (
	"net/http"
	"strconv"
	"strings"
)

// Warehouse extraction templates. Each template produces an event log
// in the canonical upload schema (user_id, timestamp, is_activation,
// value) covering the last 365 days, with an optional user-level
// sample. Placeholders are substituted from query parameters so teams
// with non-standard schemas can adjust column and table names.

const firebaseTemplate = `WITH filtered_data AS (
SELECT
    {user_id} AS user_id,
    {timestamp} AS timestamp,
    TIMESTAMP_MICROS({first_touchpoint}) AS first_touchpoint,
    {value} AS value,
FROM ` + "`{table}`" + `
WHERE {timestamp} BETWEEN TIMESTAMP_SUB(CURRENT_TIMESTAMP(), INTERVAL 365 DAY)
    AND TIMESTAMP_SUB(CURRENT_TIMESTAMP(), INTERVAL 1 DAY)
    AND TIMESTAMP_MICROS({first_touchpoint}) >= TIMESTAMP_SUB(CURRENT_TIMESTAMP(), INTERVAL 365 DAY)
),

sample_users AS (
SELECT DISTINCT
    user_id
FROM filtered_data
GROUP BY user_id
HAVING RAND() < {sample}
)

SELECT DISTINCT
    user_id,
    timestamp,
    CASE
        WHEN timestamp = first_touchpoint THEN TRUE
        ELSE FALSE
        END AS is_activation,
    value,
FROM filtered_data source_table
JOIN sample_users
USING (user_id)`

const shopifyTemplate = `WITH windows AS (
SELECT
    user_id,
    created_timestamp AS timestamp,
    row_number() OVER (
        PARTITION BY user_id
        ORDER BY created_timestamp
    ) AS customer_order_seq_number,
    (orders.total_price
        + COALESCE(order_adjustments_aggregates.order_adjustment_amount, 0)
        + COALESCE(order_adjustments_aggregates.order_adjustment_tax_amount, 0)
        - COALESCE(refund_aggregates.refund_subtotal, 0)
        - COALESCE(refund_aggregates.refund_total_tax, 0)) AS order_adjusted_total,
    refund_aggregates.refund_subtotal,
    order_tag.order_tags
FROM {order_source} AS orders
LEFT JOIN (
    SELECT
        order_id,
        source_relation,
        SUM(amount) AS order_adjustment_amount,
        SUM(tax_amount) AS order_adjustment_tax_amount
    FROM {order_adjustment_source}
    GROUP BY 1, 2
) AS order_adjustments_aggregates
ON orders.order_id = order_adjustments_aggregates.order_id
AND orders.source_relation = order_adjustments_aggregates.source_relation
LEFT JOIN (
    SELECT
        order_id,
        source_relation,
        SUM(subtotal) AS refund_subtotal,
        SUM(total_tax) AS refund_total_tax
    FROM {refund_source}
    GROUP BY 1, 2
) AS refund_aggregates
ON orders.order_id = refund_aggregates.order_id
AND orders.source_relation = refund_aggregates.source_relation
LEFT JOIN (
    SELECT
        order_id,
        source_relation,
        STRING_AGG(DISTINCT CAST(value AS TEXT), ', ') AS order_tags
    FROM {order_tag_source}
    GROUP BY 1, 2
) AS order_tag
ON orders.order_id = order_tag.order_id
AND orders.source_relation = order_tag.source_relation
WHERE orders.total_price IS NOT NULL
  AND NOT (order_tag.order_tags ILIKE '%test%')
),
new_vs_repeat AS (
    SELECT
        user_id,
        timestamp,
        CASE
            WHEN customer_order_seq_number = 1 THEN TRUE
            ELSE FALSE
        END AS new_vs_repeat,
        CASE
            WHEN refund_subtotal IS NOT NULL THEN -refund_subtotal
            ELSE order_adjusted_total
        END AS value
    FROM windows
    WHERE timestamp BETWEEN TIMESTAMP_SUB(CURRENT_TIMESTAMP(), INTERVAL 365 DAY)
                        AND TIMESTAMP_SUB(CURRENT_TIMESTAMP(), INTERVAL 1 DAY)
),
filtered_new_vs_repeat AS (
    SELECT *
    FROM new_vs_repeat
    WHERE new_vs_repeat = TRUE
    UNION ALL
    SELECT r.*
    FROM new_vs_repeat r
    JOIN (
        SELECT user_id
        FROM new_vs_repeat
        WHERE new_vs_repeat = TRUE
    ) n
    ON r.user_id = n.user_id
    WHERE r.new_vs_repeat = FALSE
),
sample_users AS (
    SELECT
        DISTINCT user_id
    FROM filtered_new_vs_repeat
    GROUP BY user_id
    HAVING RAND() < {sample}
)
SELECT DISTINCT
    user_id,
    timestamp,
    new_vs_repeat AS is_activation,
    value
FROM filtered_new_vs_repeat source_table
JOIN sample_users
USING (user_id)`

// templateParams maps each placeholder to the query parameter that
// overrides it and its default value.
type templateParam struct {
	name     string
	fallback string
}

var warehouseTemplates = map[string]struct {
	dialect string
	sql     string
	params  []templateParam
}{
	"firebase": {
		dialect: "bigquery",
		sql:     firebaseTemplate,
		params: []templateParam{
			{"table", "project_name.dataset_name.table_name"},
			{"user_id", "user_id"},
			{"timestamp", "event_timestamp"},
			{"first_touchpoint", "user_first_touch_timestamp"},
			{"value", "event_value_in_usd"},
		},
	},
	"shopify": {
		dialect: "postgresql",
		sql:     shopifyTemplate,
		params: []templateParam{
			{"order_source", `"postgres"."zz_shopify_shopify"."stg_shopify__order"`},
			{"order_adjustment_source", `"postgres"."zz_shopify_shopify"."stg_shopify__order_adjustment"`},
			{"refund_source", `"postgres"."zz_shopify_shopify"."stg_shopify__refund"`},
			{"order_tag_source", `"postgres"."zz_shopify_shopify"."stg_shopify__order_tag"`},
		},
	},
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	system := strings.ToLower(strings.TrimPrefix(r.URL.Path, "/templates/"))
	tpl, ok := warehouseTemplates[system]
	if !ok {
		s.errorResponse(w, "unknown system (supported: firebase, shopify)", http.StatusNotFound)
		return
	}

	q := r.URL.Query()

	sample := 1.0
	if v := q.Get("sample_percent"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p <= 0 || p > 100 {
			s.errorResponse(w, "sample_percent must be in (0, 100]", http.StatusBadRequest)
			return
		}
		sample = p / 100
	}

	pairs := []string{"{sample}", strconv.FormatFloat(sample, 'g', -1, 64)}
	for _, p := range tpl.params {
		value := q.Get(p.name)
		if value == "" {
			value = p.fallback
		}
		pairs = append(pairs, "{"+p.name+"}", value)
	}

	s.jsonResponse(w, map[string]string{
		"system":  system,
		"dialect": tpl.dialect,
		"sql":     strings.NewReplacer(pairs...).Replace(tpl.sql),
	})
}
