// Package router implements the idempotent record router.
//
// A Router receives a batch of base64 encoded records from a stream runtime
// and, for each record in order:
//
//  1. decodes the payload (base64, UTF-8, JSON object);
//  2. extracts event_uuid, event_name (default "") and created_at
//     (default 0, Unix seconds, UTC);
//  3. reserves the dedup key "{event_uuid}_{event_name}_{created_at}" in the
//     dedup store with an absolute expiry of now plus the configured TTL;
//  4. omits the record when the key was already reserved;
//  5. routes records with an empty event_name to "error/{y}/{m}/{d}/" with the
//     payload unchanged;
//  6. otherwise splits event_name on ':' into event_type and event_subtype,
//     adds created_datetime, event_type and event_subtype to the payload and
//     routes it to "{event_type}/{event_subtype}/{y}/{m}/{d}/".
//
// # Reservation strategies
//
// StrategyPutIfAbsent (default) collapses the existence check and the insert
// into one conditional write, so two concurrent invocations cannot both accept
// the same key. StrategyCheckThenPut performs Exists followed by Put.
//
// # Results
//
// Routed and error-partition records carry result "Ok". Records that cannot
// be decoded are returned with "ProcessingFailed" and their original bytes,
// without touching the store. A store failure aborts the batch so the runtime
// retries it.
//
// Example usage:
//
//	store, _ := dedup.New(ctx, dedupCfg, logger, metrics)
//	r, _ := router.New(store, router.Config{TTL: 24 * time.Hour}, logger, metrics)
//	out, err := r.Process(ctx, req.Records)
//	if err != nil {
//	    return err // retry the batch
//	}
package router
