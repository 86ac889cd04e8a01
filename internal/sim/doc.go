// Package sim provides deterministic stand-ins for the hardware collaborators
// so the tracker can run on a desk: a rocket flight feeding the target store,
// a device location source and a sensor source at a known attitude.
package sim
