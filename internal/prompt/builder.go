// Package prompt assembles the system instruction for one reply turn from
// the agent configuration and the retrieved knowledge chunks.
//
// The output is fully deterministic: the same agent and chunks always produce
// a byte-identical prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/konsul-ai/reply-engine/internal/model"
)

// UpdateContactToolName is the tool the field-collection block instructs the
// model to call. It must match the name registered in the tool registry.
const UpdateContactToolName = "update_contact"

var styleInstructions = map[model.CommunicationStyle]string{
	model.StyleFormal: "Comunícate de manera formal y profesional. Dirígete al usuario de usted.",
	model.StyleNormal: "Comunícate de manera clara y cercana, manteniendo un tono profesional.",
	model.StyleCasual: "Comunícate de manera casual y relajada, como si hablaras con un amigo.",
}

// Build composes the system prompt. Section order is fixed; optional sections
// are omitted entirely when their flag or data is absent.
func Build(agent *model.Agent, contextChunks []string) string {
	var sections []string

	// 1. Communication style.
	if instr, ok := styleInstructions[agent.Style]; ok {
		sections = append(sections, instr)
	} else {
		sections = append(sections, styleInstructions[model.StyleNormal])
	}

	// 2. Personality free text, verbatim.
	if agent.Personality != "" {
		sections = append(sections, agent.Personality)
	}

	// 3. Job-type framing.
	sections = append(sections, jobFraming(agent))

	// 4. Job description.
	if agent.JobDescription != "" {
		sections = append(sections, agent.JobDescription)
	}

	// 5. Retrieved knowledge, numbered. Omitted when empty.
	if len(contextChunks) > 0 {
		var b strings.Builder
		b.WriteString("CONOCIMIENTO ADICIONAL:")
		for i, chunk := range contextChunks {
			fmt.Fprintf(&b, "\n%d. %s", i+1, chunk)
		}
		sections = append(sections, b.String())
	}

	// 6. Topic restriction.
	if agent.RestrictTopics {
		sections = append(sections, "Limítate estrictamente a temas relacionados con tu trabajo. Si el usuario pregunta sobre otros temas, indícale amablemente que solo puedes ayudarle con asuntos relacionados con tu función.")
	}

	// 7. Emoji directive. Only the negative instruction exists: when emojis
	// are allowed no explicit instruction is emitted.
	if !agent.AllowEmojis {
		sections = append(sections, "No utilices emojis en tus respuestas.")
	}

	// 8. Signature.
	if agent.SignMessages {
		sections = append(sections, fmt.Sprintf("Firma tus mensajes al final con tu nombre: %s.", agent.Name))
	}

	// 9. Message splitting.
	if agent.SplitLongMessages {
		sections = append(sections, "Si tu respuesta es larga, divídela en varios mensajes cortos separados por saltos de línea dobles.")
	}

	// 10. Human transfer.
	if agent.TransferToHuman {
		sections = append(sections, "Si el usuario pide hablar con una persona real, indícale que transferirás la conversación a un agente humano.")
	}

	// 11. Custom field collection.
	if len(agent.CustomFields) > 0 {
		sections = append(sections, fieldCollection(agent.CustomFields))
	}

	return strings.TrimSpace(strings.Join(sections, "\n\n"))
}

func jobFraming(agent *model.Agent) string {
	company := agent.JobCompany
	switch agent.JobType {
	case model.JobSales:
		if company != "" {
			return fmt.Sprintf("Eres un agente de ventas de %s. Tu objetivo es entender las necesidades del usuario, resolver sus dudas y guiarlo hacia la compra.", company)
		}
		return "Eres un agente de ventas. Tu objetivo es entender las necesidades del usuario, resolver sus dudas y guiarlo hacia la compra."
	case model.JobPersonal:
		return "Eres un asistente personal. Ayuda al usuario con sus tareas y peticiones de la manera más útil posible."
	default: // SUPPORT
		if company != "" {
			return fmt.Sprintf("Eres un agente de atención al cliente de %s. Tu objetivo es resolver las dudas y problemas del usuario de forma rápida y amable.", company)
		}
		return "Eres un agente de atención al cliente. Tu objetivo es resolver las dudas y problemas del usuario de forma rápida y amable."
	}
}

func fieldCollection(fields []model.CustomFieldDefinition) string {
	var b strings.Builder
	b.WriteString("INFORMACIÓN A RECOPILAR:\n")
	fmt.Fprintf(&b, "Durante la conversación, intenta obtener los siguientes datos del usuario. Cuando consigas alguno, llama a la herramienta %s con la clave indicada:", UpdateContactToolName)
	for _, f := range fields {
		fmt.Fprintf(&b, "\n- %s (clave: %s)", f.Label, f.Key)
		if f.Description != "" {
			fmt.Fprintf(&b, ": %s", f.Description)
		}
		if f.Type == model.FieldSelect && len(f.Options) > 0 {
			fmt.Fprintf(&b, " Opciones válidas: %s.", strings.Join(f.Options, ", "))
		}
	}
	b.WriteString("\nSi la respuesta del usuario no coincide exactamente con una opción válida, elige la opción más cercana o pide una aclaración antes de guardar el dato.")
	return b.String()
}
