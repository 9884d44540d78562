// Package signal conditions a low-rate scalar sensor stream.
//
// A Processor chains four stateful filters (moving average, median,
// single-pole low-pass, variance-adaptive exponential) in a fixed order and
// annotates each reading with outlier, peak and trend detection plus a
// 0-100 quality score. All windows live in fixed arrays capped at MaxWindow,
// so steady-state processing never grows memory and every call finishes in
// time bounded by the configured window sizes.
package signal
