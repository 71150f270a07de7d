// Package schema compiles CUE class definitions into ir.SchemaModel and
// serves them to the engine as its Schema collaborator.
//
// A schema file declares classes under the top-level "class" field:
//
//	class: Order: {
//		properties: {
//			number: {type: "string", required: true, maxLength: 20}
//		}
//		relations: {
//			customer: {class: "Customer", opposite: "orders", kind: "single", mandatory: true}
//			items: {class: "OrderItem", opposite: "order", kind: "collection", virtual: true}
//		}
//	}
//
// Compilation uses the CUE Go API directly. Validate checks the compiled
// model (relation pairs, types, limits); AnalyzeCycles reports mandatory
// relation cycles as warnings.
package schema
