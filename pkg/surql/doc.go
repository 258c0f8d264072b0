// Package surql builds SurrealQL statements for graph operations.
//
// It owns the pieces of the query language the rest of the server relies on:
//
//   - record references of the form table:key (RecordRef)
//   - identifier allow-listing for tables, edge tables and edge attributes
//   - RELATE / SELECT / UPSERT statement construction (Builder)
//   - edge id strategies (store-generated ulid()/uuid()/rand() or client UUIDs)
//   - value encoding, either as bound parameters or as escaped literals
//   - the error taxonomy shared by controllers and store adapters
//
// The package never talks to a database. Statements are handed to whatever
// session the caller injected.
//
// Example:
//
//	b := surql.NewBuilder()
//	stmt, err := b.Relate(surql.RelateRequest{
//	    Source:      "diagnosis:depression",
//	    EdgeTable:   "HAS_SYMPTOM",
//	    Destination: "symptom:fatigue",
//	    Payload:     map[string]any{"note": "Patients often report feeling very tired"},
//	})
//	// stmt.Text == "RELATE diagnosis:depression -> HAS_SYMPTOM:ulid() -> symptom:fatigue SET note = $v0"
//	// stmt.Vars == map[string]any{"v0": "Patients often report feeling very tired"}
package surql
