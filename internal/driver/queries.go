package driver

var IndexQueries = []string{
	"CREATE INDEX ON :Owner(uuid);",
	"CREATE INDEX ON :Entity(uuid);",
	"CREATE INDEX ON :Episodic(uuid);",
	"CREATE INDEX ON :Saga(uuid);",

	"CREATE INDEX ON :Entity(group_id);",
	"CREATE INDEX ON :Episodic(group_id);",
	"CREATE INDEX ON :Saga(group_id);",
}

const (
	SaveOwnerQuery = `
		MERGE (o:Owner {uuid: $uuid})
		ON CREATE SET o.created_at = $created_at
		SET o.group_id = $uuid,
			o.metadata = $metadata
		RETURN o.uuid AS uuid
	`

	SaveEntityNodeQuery = `
		MERGE (n:Entity {uuid: $uuid})
		ON CREATE SET n.created_at = $created_at
		SET n.name = $name,
			n.group_id = $group_id,
			n.node_type = $node_type,
			n.provider = $provider,
			n.summary = $summary,
			n.attributes = $attributes,
			n.updated_at = $updated_at
		RETURN n.uuid AS uuid
	`

	// Reference entities are placeholders named after a relation token (e.g. issue_42).
	// They never overwrite a richer node that already carries the same uuid.
	SaveReferenceNodeQuery = `
		MERGE (n:Entity {uuid: $uuid})
		ON CREATE SET n.name = $name,
			n.group_id = $group_id,
			n.node_type = $node_type,
			n.summary = "",
			n.created_at = $created_at
		RETURN n.uuid AS uuid
	`

	SaveEpisodicNodeQuery = `
		MERGE (n:Episodic {uuid: $uuid})
		SET n.name = $name,
			n.group_id = $group_id,
			n.created_at = $created_at,
			n.valid_at = $valid_at,
			n.content = $content,
			n.source = $source,
			n.role = $role
		RETURN n.uuid AS uuid
	`

	SaveEntityEdgeQuery = `
		MATCH (source:Entity {uuid: $source_uuid})
		MATCH (target:Entity {uuid: $target_uuid})
		MERGE (source)-[e:RELATES_TO {uuid: $uuid}]->(target)
		ON CREATE SET e.created_at = $created_at
		SET e.name = $name,
			e.fact = $fact,
			e.group_id = $group_id,
			e.strength = $strength,
			e.valid_at = $valid_at,
			e.invalid_at = $invalid_at
		RETURN e.uuid AS uuid
	`

	SaveEpisodicEdgeQuery = `
		MATCH (episode:Episodic {uuid: $source_uuid})
		MATCH (node:Entity {uuid: $target_uuid})
		MERGE (episode)-[e:MENTIONS {uuid: $uuid}]->(node)
		SET e.group_id = $group_id,
			e.created_at = $created_at
		RETURN e.uuid AS uuid
	`

	SearchEdgesQuery = `
		MATCH (source:Entity {group_id: $group_id})-[e:RELATES_TO]->(target:Entity)
		WHERE size($terms) = 0 OR any(term IN $terms WHERE toLower(e.fact) CONTAINS term)
		RETURN e.uuid AS uuid, e.fact AS fact, e.name AS name, e.strength AS strength,
			e.valid_at AS valid_at, e.invalid_at AS invalid_at, e.expired_at AS expired_at
		LIMIT $limit
	`

	SearchNodesQuery = `
		MATCH (n:Entity {group_id: $group_id})
		WHERE size($terms) = 0 OR any(term IN $terms WHERE
			toLower(n.name) CONTAINS term OR toLower(coalesce(n.summary, "")) CONTAINS term)
		RETURN n.uuid AS uuid, n.name AS name, n.summary AS summary, n.node_type AS node_type,
			n.created_at AS created_at
		LIMIT $limit
	`

	SearchEpisodesQuery = `
		MATCH (e:Episodic {group_id: $group_id})
		WHERE e.source <> "message"
			AND (size($terms) = 0 OR any(term IN $terms WHERE
				toLower(e.content) CONTAINS term OR toLower(coalesce(e.name, "")) CONTAINS term))
		RETURN e.uuid AS uuid, e.name AS name, e.content AS content,
			e.valid_at AS valid_at, e.created_at AS created_at
		LIMIT $limit
	`

	SaveSagaNodeQuery = `
		MERGE (n:Saga {uuid: $uuid})
		ON CREATE SET n.created_at = $created_at
		SET n.name = $name,
			n.group_id = $group_id,
			n.metadata = $metadata
		RETURN n.uuid AS uuid
	`

	GetSagaQuery = `
		MATCH (s:Saga {uuid: $uuid})
		RETURN s.uuid AS uuid, s.group_id AS group_id
	`

	GetPreviousEpisodeInSagaQuery = `
		MATCH (s:Saga {uuid: $saga_uuid})-[:HAS_EPISODE]->(e:Episodic)
		WHERE e.uuid <> $current_episode_uuid
		RETURN e.uuid AS uuid
		ORDER BY e.created_at DESC
		LIMIT 1
	`

	SaveNextEpisodeEdgeQuery = `
		MATCH (source:Episodic {uuid: $source_uuid})
		MATCH (target:Episodic {uuid: $target_uuid})
		MERGE (source)-[e:NEXT_EPISODE {uuid: $uuid}]->(target)
		SET e.group_id = $group_id,
			e.created_at = $created_at
		RETURN e.uuid AS uuid
	`

	SaveHasEpisodeEdgeQuery = `
		MATCH (source:Saga {uuid: $source_uuid})
		MATCH (target:Episodic {uuid: $target_uuid})
		MERGE (source)-[e:HAS_EPISODE {uuid: $uuid}]->(target)
		SET e.group_id = $group_id,
			e.created_at = $created_at
		RETURN e.uuid AS uuid
	`

	GetRecentFactsQuery = `
		MATCH (:Entity {group_id: $group_id})-[e:RELATES_TO]->(:Entity)
		WHERE coalesce(e.strength, 0.0) >= $min_rating AND e.expired_at IS NULL
		RETURN e.fact AS fact, e.valid_at AS valid_at
		ORDER BY e.created_at DESC
		LIMIT $limit
	`

	GetSagaMessagesQuery = `
		MATCH (s:Saga {uuid: $saga_uuid})-[:HAS_EPISODE]->(e:Episodic)
		RETURN e.uuid AS uuid, e.role AS role, e.content AS content, e.created_at AS created_at
		ORDER BY e.created_at DESC
		LIMIT $limit
	`
)
