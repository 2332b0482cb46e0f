// Package webhooks receives Mercado Livre topic notifications and turns the
// ones that can change the delivery cache into reconcile jobs.
//
// Notifications arrive in bursts, often several per order. A burst controller
// collapses repeats per topic and seller within a window, and the job slot is
// aligned to that window so the queue drops duplicates that slip through.
package webhooks
