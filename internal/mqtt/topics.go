package mqtt

import "strings"

const sourcePrefix = "mqtt:"

// extractSiteID extracts the site id from a telemetry topic
// Example: "pv/site-001/telemetry" -> "site-001"
func extractSiteID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 {
		return parts[1]
	}
	return ""
}

// formatTopic replaces the {site_id} placeholder with the actual site id
func formatTopic(topicPattern, siteID string) string {
	return strings.ReplaceAll(topicPattern, "{site_id}", siteID)
}

// siteFromSource maps a prediction source to the site its alert is published for.
// Batches received over MQTT carry "mqtt:<site>"; any other source is used as is.
func siteFromSource(source string) string {
	if site, ok := strings.CutPrefix(source, sourcePrefix); ok && site != "" {
		return site
	}
	if source == "" {
		return "api"
	}
	return source
}
