// Package providers groups the upstream integrations: the marketplace client
// in mercadolivre and the image search engines used for enrichment.
package providers
