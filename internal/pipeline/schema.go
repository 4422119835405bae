package pipeline

// Column names the pipeline addresses directly.
const (
	ColOrderID          = "order_id"
	ColTransactionIndex = "transaction_index"
	ColOrderVendor      = "order_vendor"
	ColVendorGroup      = "vendor_group"
	ColPaymentSystem    = "payment_system"

	ColVATBand       = "vat_band"
	ColItemQuantity  = "item_quantity_count"
	ColPriceIncVAT   = "total_price_inc_vat"
	ColPriceExcVAT   = "total_price_exc_vat"
	ColTotalProducts = "total_products"
)

// VAT band codes, in output column order.
const (
	BandZero   = "0"
	BandFive   = "5"
	BandTwenty = "20"
	BandOther  = "other"
)

// VATBands lists every band code produced by the pivot.
var VATBands = []string{BandZero, BandFive, BandTwenty, BandOther}

// ItemMetrics lists the item-level measures summed per order and band.
var ItemMetrics = []string{ColItemQuantity, ColPriceIncVAT, ColPriceExcVAT}

// vatBandLabels maps warehouse display labels to band codes. Both spellings
// of the "other" label have been observed.
var vatBandLabels = map[string]string{
	"0% VAT Band":              BandZero,
	"5% VAT Band":              BandFive,
	"20% VAT Band":             BandTwenty,
	"Other/Unknown VAT Band":   BandOther,
	"Other / Unknown VAT Band": BandOther,
}

// MetricColumn names the pivoted column for a metric and band.
func MetricColumn(metric, band string) string {
	return metric + "_" + band
}

// ItemDerivedColumns returns every column produced by the pivot except the
// order key: each metric/band pair followed by total_products.
func ItemDerivedColumns() []string {
	cols := make([]string, 0, len(ItemMetrics)*len(VATBands)+1)
	for _, m := range ItemMetrics {
		for _, b := range VATBands {
			cols = append(cols, MetricColumn(m, b))
		}
	}
	return append(cols, ColTotalProducts)
}

// CanonicalColumns is the ordered export schema. Item breakdown columns stop at
// the 20% band: "other"-band aggregates are computed but not exported.
var CanonicalColumns = []string{
	// identifiers
	"order_id", "order_id_obfuscated", "mp_order_id",
	"payment_system", "transaction_index", "transaction_id",
	"location_name", "order_vendor", "vendor_group",

	// status and timestamps
	"order_completed", "created_at_timestamp", "delivered_at_timestamp",
	"created_at_day", "created_at_week", "created_at_month",
	"delivered_at_day", "delivered_at_week", "delivered_at_month",
	"ops_date_day", "ops_date_week", "ops_date_month",

	// VAT and revenue
	"blended_vat_rate", "post_promo_sales_inc_vat",
	"delivery_fee_inc_vat", "priority_fee_inc_vat",
	"small_order_fee_inc_vat", "mp_bag_fee_inc_vat",
	"total_payment_inc_vat", "tips_amount",
	"total_payment_with_tips_inc_vat",

	"post_promo_sales_exc_vat", "delivery_fee_exc_vat",
	"priority_fee_exc_vat", "small_order_fee_exc_vat",
	"mp_bag_fee_exc_vat", "total_revenue_exc_vat",
	"cost_of_goods_inc_vat", "cost_of_goods_exc_vat",

	// alternate metrics for reconciliation
	"alt_post_promo_sales_inc_vat", "alt_delivery_fee_exc_vat",
	"alt_priority_fee_exc_vat", "alt_small_order_fee_exc_vat",
	"alt_total_payment_with_tips_inc_vat",

	// item breakdown
	"total_products",
	"item_quantity_count_0", "item_quantity_count_5", "item_quantity_count_20",
	"total_price_exc_vat_0", "total_price_exc_vat_5", "total_price_exc_vat_20",
	"total_price_inc_vat_0", "total_price_inc_vat_5", "total_price_inc_vat_20",
}
