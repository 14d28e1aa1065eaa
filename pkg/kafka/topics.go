package kafka

// TopicPrefix namespaces every topic owned by the coffee shop services.
const TopicPrefix = "coffeeshop"

// Topic builds a topic name of the form <prefix>.<domain>.<action>.
func Topic(domain, action string) string {
	return TopicPrefix + "." + domain + "." + action
}
