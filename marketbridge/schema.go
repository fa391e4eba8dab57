package marketbridge

import "github.com/AlephTX/usrl/schema"

// PriceQuoteSchema builds the fixed five-field layout
// examples/market_publisher.c's PriceQuote struct defines (timestamp,
// ticker_crc, bid_price, ask_price, volume), reproduced field-for-field
// through the schema package instead of a packed Go struct, the same way
// the C original builds it through usrl_schema_add_field calls.
func PriceQuoteSchema() (*schema.Schema, error) {
	s := schema.New(1, "price_quote")
	fields := []struct {
		name string
		typ  schema.FieldType
	}{
		{"timestamp", schema.U64},
		{"ticker_crc", schema.U32},
		{"bid_price", schema.F64},
		{"ask_price", schema.F64},
		{"volume", schema.U64},
	}
	for _, f := range fields {
		if err := s.AddField(f.name, f.typ, 0); err != nil {
			return nil, err
		}
	}
	if err := s.Finalize(); err != nil {
		return nil, err
	}
	return s, nil
}

// tickerCRC is a stable per-symbol identifier, hashed with the same djb2
// fold usrl_schema_hash uses rather than a true CRC32.
func tickerCRC(symbol string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(symbol); i++ {
		h = h*33 + uint32(symbol[i])
	}
	return h
}
