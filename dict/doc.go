// Package dict serves console dictionaries: small typed value/label lists
// such as "sys_normal_disable" used to render status columns and selects.
//
// A [Service] fetches each requested type from a [Source] at most once per
// cache lifetime and derives the shapes the console asks for:
//
//	svc := dict.NewService(source, dict.NewMemoryCache(), dict.DefaultConfig())
//	labels, err := svc.Record(ctx, "sys_normal_disable", "sys_user_sex")
//	// labels["sys_user_sex"]["0"] == "Male"
//
// # Invalidation
//
// Cache keys are scoped by locale ("dict:<locale>:<type>"). Entries are never
// refreshed behind the caller's back: they expire after Config.TTL, are
// dropped explicitly through [Service.Invalidate] (one locale) or
// [Service.InvalidateAllLocales], or all at once when [Service.SetLocale]
// switches the scope. Deployments sharing a [RedisCache] see each other's
// invalidations.
package dict
