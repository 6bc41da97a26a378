// Package strategy picks one upstream out of a healthy set:
//
//   - round_robin: sequential distribution
//   - weighted_round_robin: smooth distribution proportional to upstream weight
//   - random: uniform random selection
//   - least_conn: fewest active requests
//   - least_response: lowest EWMA response time weighted by active requests
//   - consistent_hash: hash ring over a request key, so a client sticks to
//     one upstream while the healthy set is stable
//
// Callers filter for health before calling Select. Keyed strategies also
// need SetKey before each Select.
package strategy
