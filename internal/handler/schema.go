package handler

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xenking/emart-orders/internal/domain/apperr"
)

const createOrderSchema = `{
  "type": "object",
  "required": ["products", "shippingAddress", "paymentMethod"],
  "properties": {
    "products": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["product", "quantity"],
        "properties": {
          "product": {"type": "string", "minLength": 1},
          "quantity": {"type": "integer", "minimum": 1},
          "color": {"type": "string"},
          "type": {"type": "string"}
        }
      }
    },
    "coupon": {"type": ["string", "null"]},
    "shippingAddress": {
      "type": "object",
      "required": ["city"],
      "properties": {
        "city": {"type": "string", "minLength": 1},
        "zip_code": {"type": "string"},
        "street_or_building_name": {"type": "string"},
        "area": {"type": "string"}
      }
    },
    "paymentMethod": {"type": "string", "enum": ["COD", "Online"]}
  }
}`

const changeStatusSchema = `{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"type": "string", "enum": ["Pending", "Processing", "Picked", "Completed", "Cancelled"]}
  }
}`

const assignAgentSchema = `{
  "type": "object",
  "required": ["orderId", "agentId"],
  "properties": {
    "orderId": {"type": "string", "minLength": 1},
    "agentId": {"type": "string", "minLength": 1}
  }
}`

var (
	createOrderLoader  = mustSchema(createOrderSchema)
	changeStatusLoader = mustSchema(changeStatusSchema)
	assignAgentLoader  = mustSchema(assignAgentSchema)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return schema
}

// validateBody checks body against schema. Every violation is reported in
// one Validation error.
func validateBody(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperr.New(apperr.KindValidation, "request body is not valid JSON")
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return apperr.New(apperr.KindValidation, "invalid request body: "+strings.Join(msgs, "; "))
}
