package conversation

import (
	"fmt"
	"strings"

	"github.com/veraclinic/agendabot/internal/registry"
	"github.com/veraclinic/agendabot/internal/session"
)

// Fixed clinic texts. Wording follows the clinic's approved scripts.

const msgMenu = `Olá! Sou a Cláudia, assistente virtual da clínica.

Escolha uma opção:
1) Agendamento particular
2) Agendamento convênio
3) Acompanhamento pós-operatório
4) Falar com um atendente`

const msgParticular = `Agendamento particular

💰 Valor da consulta: R$ 350,00

Onde será a consulta
📍 Consultório Livance – Campinas
Avenida Orosimbo Maia, 360
6º andar – Vila Itapura
Campinas – SP | CEP 13010-211

Ao chegar, realize o check-in no totem localizado
na recepção da unidade.

Formas de pagamento
• Pix
• Débito
• Cartão de crédito

Todos os pagamentos devem ser realizados no totem de atendimento,
no momento da chegada ao consultório, antes da consulta.

Agendamento
Escolha uma opção:
1) Acesse o link de agendamento e escolha o melhor horário disponível
0) Voltar ao menu inicial`

const msgLinkAgendamento = `👉 Link de agendamento:
https://agendamento.consultorio.com

Após a confirmação, você receberá as orientações para o dia da consulta.

Se tiver qualquer dificuldade durante o agendamento,
envie uma mensagem com a palavra AJUDA.`

const msgConvenios = `Selecione o seu convênio:
1) GoCare
2) Samaritano
3) Salusmed
4) Proasa
5) MedSênior
0) Voltar ao menu inicial`

func msgConvenioNaoAgenda(linha string) string {
	return fmt.Sprintf(`Não realizamos o agendamento por aqui.

%s

Escolha uma opção:
9) Agendamento particular
0) Voltar aos convênios`, linha)
}

const msgMedSenior = `MedSênior

Para pacientes MedSênior, o agendamento é realizado diretamente por aqui.

📍 Consultório Livance – Campinas
Avenida Orosimbo Maia, 360
6º andar – Vila Itapura

Escolha uma opção:
1) Iniciar o agendamento
0) Voltar aos convênios`

const msgPosMenu = `Acompanhamento pós-operatório

Este canal é destinado a pacientes operados pelo Dr. David E. Vera.

Escolha uma opção:
1) Pós-operatório recente (até 30 dias)
2) Pós-operatório tardio (mais de 30 dias)
0) Voltar ao menu inicial`

const msgPosRecente = `Pós-operatório recente
👉 Acesse o canal dedicado:
https://wa.me/5519933005596

Observação:
Solicitações administrativas (atestados, laudos, relatórios)
devem ser realizadas em consulta.

0) Voltar ao menu inicial`

const msgPosTardio = `Pós-operatório tardio
Demandas não urgentes devem ser avaliadas em consulta.

Escolha uma opção:
1) Agendamento particular
2) Agendamento convênio
0) Voltar ao menu inicial`

const msgAtendente = `Falar com um atendente

Este canal está disponível para apoio, dúvidas gerais
e auxílio no uso dos serviços da clínica.

Para solicitações médicas, como atestados, laudos,
relatórios ou orientações clínicas,
é necessária avaliação em consulta.

Se desejar, descreva abaixo como podemos te ajudar.`

const msgAjudaPrompt = `Entendi — vou te ajudar 🙂

Me diga em uma mensagem qual etapa está travando
(abrir link, escolher horário ou confirmar).`

func msgHandoff(supportNumber, reason string) string {
	link := fmt.Sprintf("https://wa.me/%s", supportNumber)
	if reason != "" {
		link += "?text=" + urlEncode("Olá! Preciso de ajuda: "+reason)
	}
	return fmt.Sprintf(`Certo! Encaminhei sua solicitação para a equipe.

👉 Se preferir, fale direto com um atendente:
%s`, link)
}

// insuranceLines carries the referral line shown for plans the bot cannot
// book.
var insuranceLines = map[string]struct {
	Plan session.PlanKey
	Line string
}{
	"1": {session.PlanGoCare, "GoCare → Clínica Santé (19) 3995-0382"},
	"2": {session.PlanSamaritano, "Samaritano → Hosp. Samaritano Unidade 2 (19) 3738-8100 ou Pró-Consulta Sumaré (19) 3883-1314"},
	"3": {session.PlanSalusmed, "Salusmed → Clínica Matuda (19) 3733-1111"},
	"4": {session.PlanProasa, "Proasa → Cevisa (19) 3858-5918"},
}

// Wizard prompts, one per collected field.

const msgAskNationalID = `Para agendar, preciso localizar o seu cadastro.

Por favor, digite o seu CPF (somente números).`

const msgInvalidNationalID = `CPF inválido. Digite os 11 números do seu CPF, sem pontos ou traços.`

const msgNewPatient = `Não encontrei um cadastro com esse CPF.
Vou fazer o seu cadastro agora — leva menos de 2 minutos.`

func msgResumeWizard(missing []registry.Field) string {
	labels := make([]string, 0, len(missing))
	for _, f := range missing {
		labels = append(labels, fieldLabel(f))
	}
	return fmt.Sprintf(`Encontrei o seu cadastro, mas faltam algumas informações:
• %s

Vamos completar rapidinho.`, strings.Join(labels, "\n• "))
}

func fieldLabel(f registry.Field) string {
	switch f {
	case registry.FieldName:
		return "Nome completo"
	case registry.FieldBirthDate:
		return "Data de nascimento"
	case registry.FieldSex:
		return "Sexo"
	case registry.FieldPlan:
		return "Convênio"
	case registry.FieldEmail:
		return "E-mail"
	case registry.FieldPostalCode:
		return "CEP"
	case registry.FieldStreet:
		return "Rua"
	case registry.FieldNumber:
		return "Número"
	case registry.FieldComplement:
		return "Complemento"
	case registry.FieldNeighborhood:
		return "Bairro"
	case registry.FieldCity:
		return "Cidade"
	case registry.FieldRegion:
		return "Estado (UF)"
	}
	return string(f)
}

func fieldPrompt(f registry.Field) string {
	switch f {
	case registry.FieldName:
		return "Qual é o seu nome completo?"
	case registry.FieldBirthDate:
		return "Qual é a sua data de nascimento? (DD/MM/AAAA)"
	case registry.FieldSex:
		return `Qual é o seu sexo?
1) Masculino
2) Feminino
3) Prefiro não informar`
	case registry.FieldPlan:
		return `Qual é o seu convênio?
1) Particular
2) MedSênior`
	case registry.FieldEmail:
		return "Qual é o seu e-mail?"
	case registry.FieldPostalCode:
		return "Qual é o seu CEP? (somente números)"
	case registry.FieldStreet:
		return "Qual é a sua rua/avenida?"
	case registry.FieldNumber:
		return "Qual é o número?"
	case registry.FieldComplement:
		return "Complemento? (apartamento, bloco — digite - se não houver)"
	case registry.FieldNeighborhood:
		return "Qual é o seu bairro?"
	case registry.FieldCity:
		return "Qual é a sua cidade?"
	case registry.FieldRegion:
		return "Qual é o seu estado? (sigla, ex.: SP)"
	}
	return ""
}

func fieldValidationError(f registry.Field) string {
	switch f {
	case registry.FieldBirthDate:
		return "Data inválida. Use o formato DD/MM/AAAA (ex.: 25/03/1960)."
	case registry.FieldEmail:
		return "E-mail inválido. Confira e envie novamente (ex.: nome@provedor.com.br)."
	case registry.FieldPostalCode:
		return "CEP inválido. Digite os 8 números, sem traço."
	case registry.FieldRegion:
		return "UF inválida. Digite a sigla com 2 letras (ex.: SP)."
	}
	return "Não entendi. " + fieldPrompt(f)
}

const msgRegistrationDone = `Cadastro concluído! ✅

Você receberá um e-mail do portal do paciente para criar a sua senha
de primeiro acesso.`

const msgRegistryUnavailable = `Não consegui acessar o cadastro agora. 😕
Tente novamente em alguns minutos ou envie AJUDA para falar com a equipe.`

const msgSchedulingUnavailable = `Não consegui consultar a agenda agora. 😕
Tente novamente em alguns minutos ou envie AJUDA para falar com a equipe.`

const msgNoDatesAvailable = `No momento não há datas com horários disponíveis. 😕
Envie AJUDA para falar com a equipe e verificar outras opções.`

const msgDatePrompt = `Estas são as próximas datas com horários disponíveis.
Escolha uma opção:`

const msgSlotPrompt = `Horários disponíveis:`

const msgNoSlotsForDate = `Esse dia ficou sem horários disponíveis. Vamos tentar outra data.`

const msgSlotGone = `Esse horário não está mais disponível para agendamento. 😕
Veja os horários atualizados abaixo.`

const msgBookingFailed = `Não consegui confirmar esse horário. 😕
Escolha outro horário abaixo — ou envie AJUDA para falar com a equipe.`

func msgConfirmPrompt(date, timeOfDay string) string {
	return fmt.Sprintf(`Confirmar a consulta?

🗓 %s às %s
📍 Consultório Livance – Campinas
Avenida Orosimbo Maia, 360 – 6º andar`, formatDateBR(date), timeOfDay)
}

func msgBookingConfirmed(date, timeOfDay, code, extra string) string {
	body := fmt.Sprintf(`Consulta confirmada! ✅

🗓 %s às %s
📍 Consultório Livance – Campinas
Avenida Orosimbo Maia, 360
6º andar – Vila Itapura

Ao chegar, realize o check-in no totem localizado
na recepção da unidade.`, formatDateBR(date), timeOfDay)
	if code != "" {
		body += fmt.Sprintf("\n\n🔖 Código de confirmação: %s", code)
	}
	if extra != "" {
		body += "\n\n" + extra
	}
	return body
}
